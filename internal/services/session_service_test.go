package services

import (
	"fmt"
	"testing"

	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/storage"
)

// TestSessionAppendAndHistory 测试会话追加与窗口读取
func TestSessionAppendAndHistory(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")

	for i := 0; i < 6; i++ {
		svc.Append("s1", models.RoleUser, fmt.Sprintf("question %d", i))
		svc.Append("s1", models.RoleAssistant, fmt.Sprintf("answer %d", i))
	}

	if got := svc.TurnCount("s1"); got != 12 {
		t.Fatalf("展示历史应该有12条，实际%d条", got)
	}

	// 窗口读取只取最近的N条，且不修改底层历史
	recent := svc.History("s1", 4)
	if len(recent) != 4 {
		t.Fatalf("窗口读取应该返回4条，实际%d条", len(recent))
	}
	if recent[0].Content != "question 4" {
		t.Errorf("窗口应该从最近处截取，实际第一条: %s", recent[0].Content)
	}
	if got := svc.TurnCount("s1"); got != 12 {
		t.Fatalf("窗口读取不应该修改底层历史，修改后%d条", got)
	}

	// limit<=0返回完整历史
	if full := svc.History("s1", 0); len(full) != 12 {
		t.Fatalf("完整读取应该返回12条，实际%d条", len(full))
	}
}

// TestSessionTimestampsMonotonic 测试会话内时间戳单调递增
func TestSessionTimestampsMonotonic(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")

	for i := 0; i < 20; i++ {
		svc.Append("s1", models.RoleUser, "m")
	}

	history := svc.History("s1", 0)
	for i := 1; i < len(history); i++ {
		if !history[i].Timestamp.After(history[i-1].Timestamp) {
			t.Fatalf("第%d条时间戳没有严格递增", i)
		}
	}
}

// TestSessionPersonaSwitch 测试切换人格清空历史
func TestSessionPersonaSwitch(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")
	svc.Append("s1", models.RoleUser, "hello")
	svc.Append("s1", models.RoleAssistant, "hi there")

	// 相同人格与文化不影响历史
	svc.GetOrCreate("s1", "friend", "delhi")
	if got := svc.TurnCount("s1"); got != 2 {
		t.Fatalf("相同配置不应该清空历史，实际%d条", got)
	}

	// 切换人格重新开始
	svc.GetOrCreate("s1", "mentor", "delhi")
	if got := svc.TurnCount("s1"); got != 0 {
		t.Fatalf("切换人格应该清空历史，实际%d条", got)
	}
}

// TestPrepareRetry 测试重试时只移除被取代的assistant回复
func TestPrepareRetry(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")
	svc.Append("s1", models.RoleUser, "first")
	svc.Append("s1", models.RoleAssistant, "reply one")
	svc.Append("s1", models.RoleUser, "second")
	svc.Append("s1", models.RoleAssistant, "reply two")

	message, ok := svc.PrepareRetry("s1")
	if !ok {
		t.Fatal("应该找到可重试的用户消息")
	}
	if message != "second" {
		t.Fatalf("应该重试最近一条用户消息，实际: %s", message)
	}

	history := svc.History("s1", 0)
	if len(history) != 3 {
		t.Fatalf("被取代的回复应该移除，历史应剩3条，实际%d条", len(history))
	}
	if history[2].Role != models.RoleUser || history[2].Content != "second" {
		t.Fatal("用户消息本身应该保留在历史中")
	}
}

// TestPrepareRetryEmpty 测试空会话的重试是静默跳过
func TestPrepareRetryEmpty(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")

	if _, ok := svc.PrepareRetry("s1"); ok {
		t.Fatal("没有用户消息时重试应该返回false")
	}
	if _, ok := svc.PrepareRetry("missing"); ok {
		t.Fatal("不存在的会话重试应该返回false")
	}
}

// TestSessionPersistence 测试会话跨服务实例恢复
func TestSessionPersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.OpenConversationStore(dir)
	if err != nil {
		t.Fatalf("打开会话存储失败: %v", err)
	}

	svc := NewSessionService(store)
	svc.GetOrCreate("s1", "romantic", "parisian")
	svc.Append("s1", models.RoleUser, "bonjour")
	svc.Append("s1", models.RoleAssistant, "bonjour mon amour")
	store.Close()

	// 新的存储与服务实例，模拟进程重启
	store2, err := storage.OpenConversationStore(dir)
	if err != nil {
		t.Fatalf("重新打开会话存储失败: %v", err)
	}
	defer store2.Close()

	svc2 := NewSessionService(store2)
	svc2.GetOrCreate("s1", "romantic", "parisian")
	history := svc2.History("s1", 0)
	if len(history) != 2 {
		t.Fatalf("重启后应该恢复2条历史，实际%d条", len(history))
	}
	if history[0].Content != "bonjour" {
		t.Errorf("恢复的历史内容不正确: %s", history[0].Content)
	}
}

// TestSessionClearAndRemove 测试清空与删除
func TestSessionClearAndRemove(t *testing.T) {
	svc := NewSessionService(nil)
	svc.GetOrCreate("s1", "friend", "delhi")
	svc.Append("s1", models.RoleUser, "hello")

	svc.Clear("s1")
	if got := svc.TurnCount("s1"); got != 0 {
		t.Fatalf("清空后应该没有历史，实际%d条", got)
	}

	svc.Remove("s1")
	if history := svc.History("s1", 0); history != nil {
		t.Fatal("删除后的会话不应该有历史")
	}
}
