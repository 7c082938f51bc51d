package analysis

import (
	"fmt"
	"strings"
	"time"
)

// PromptParams contains the inputs of the instruction block.
type PromptParams struct {
	ContextLabel    string
	Now             time.Time
	AttachmentCount int
}

var weekdays = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// InstructionPrompt builds the instruction block sent ahead of the batch.
func InstructionPrompt(params PromptParams) string {
	label := strings.TrimSpace(params.ContextLabel)

	contentRule := "- 只能根據下方文字內容整理，不可捏造文字中沒有出現的人物、時間、地點或事件。"
	attachmentNote := ""
	if params.AttachmentCount > 0 {
		attachmentNote = fmt.Sprintf("，以及 %d 個附件（截圖、照片或文件）", params.AttachmentCount)
		contentRule = "- 請辨識附件中的文字（OCR）與內容，並和文字訊息一起納入摘要、分類、標籤與事件擷取。"
	}

	return fmt.Sprintf(`你是一位協助整理聊天紀錄的秘書。使用者轉傳了一批與「%s」相關的訊息%s。

%s
請把內容中的相對日期（例如「明天」、「下週三」、「月底」）以上述時間為基準換算成絕對日期時間。

請用繁體中文回覆，只輸出 JSON，不要加上任何說明文字，格式如下：
{
  "source": "%s",
  "category": "內容分類（例如：會議、帳務、行程、工作、家庭、其他）",
  "summary": "一段簡潔的重點摘要",
  "tags": ["標籤1", "標籤2"],
  "calendar_events": [
    {"title": "事件名稱", "start": "YYYY-MM-DDTHH:MM:SS", "end": "YYYY-MM-DDTHH:MM:SS", "location": "地點"}
  ]
}

規則：
- source 一律填入「%s」。
- category 只填一個簡短的分類名稱，會被用來當作資料夾名稱。
- 沒有明確的會議、約會或截止期限時，calendar_events 回傳空陣列。
- 只知道日期、不知道時間時，start 只填 YYYY-MM-DD；不知道結束時間時 end 留空字串。
%s`,
		label,
		attachmentNote,
		FormatNow(params.Now),
		label,
		label,
		contentRule,
	)
}

// FormatNow renders the anchor time for relative-date resolution.
func FormatNow(now time.Time) string {
	return fmt.Sprintf("現在時間：%s（星期%s）%s，時區 %s",
		now.Format("2006-01-02"),
		weekdays[now.Weekday()],
		now.Format("15:04"),
		now.Location().String(),
	)
}

// ContentBlock joins the recorded text lines in arrival order.
func ContentBlock(texts []string) string {
	if len(texts) == 0 {
		return "以下沒有文字訊息，請只根據附件內容整理。"
	}
	return "以下是轉傳的文字內容：\n----\n" + strings.Join(texts, "\n")
}
