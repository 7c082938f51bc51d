package session

import (
	"fmt"
	"strings"

	"github.com/memohai/archivist/internal/pipeline"
)

const (
	msgProcessing = "⏳ 正在分析與歸檔..."
	msgFailure    = "❌ 處理失敗，請稍後再試。"
	msgIdle       = "目前沒有在記錄喔！請先傳送「開始 <對象>」，例如：開始 王經理"
	msgNotStarted = "目前沒有進行中的記錄，請先傳送「開始 <對象>」。"
)

func startAck(label string) string {
	return fmt.Sprintf("🔴 開始記錄：%s\n請轉傳訊息、圖片或檔案，完成後傳送「結束」。", label)
}

func restartAck(previous, label string) string {
	return fmt.Sprintf("⚠️ 已捨棄先前的記錄「%s」。\n%s", previous, startAck(label))
}

func expiredNotice(label string) string {
	return fmt.Sprintf("⌛ 記錄「%s」閒置過久已自動結束，內容未歸檔。", label)
}

func completion(report pipeline.Report) string {
	var sb strings.Builder
	sb.WriteString("✅ 完成！\n")
	if report.Folder.CategoryID != "" {
		fmt.Fprintf(&sb, "📁 分類：%s\n", report.Folder.String())
	} else {
		fmt.Fprintf(&sb, "📁 分類：%s/%s\n", report.Result.Source, report.Result.Category)
	}
	if s := strings.TrimSpace(report.Result.Summary); s != "" {
		fmt.Fprintf(&sb, "📝 摘要：%s\n", s)
	}
	if len(report.Result.Tags) > 0 {
		fmt.Fprintf(&sb, "🏷️ 標籤：%s\n", strings.Join(report.Result.Tags, "、"))
	}
	fmt.Fprintf(&sb, "📦 已歸檔 %d 個檔案", report.Uploaded)
	if report.Events > 0 {
		fmt.Fprintf(&sb, "\n📅 已建立 %d 個行事曆事件", report.Events)
	}
	return sb.String()
}
