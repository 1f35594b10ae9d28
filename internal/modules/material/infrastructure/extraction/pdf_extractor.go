package extraction

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/pkg/zlog"

	pdf "github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// 低于该字母数字占比的文本多半是乱码（扫描件、加密 PDF），仅告警不阻断
const alnumRatioFloor = 0.35

var pdfMagic = []byte("%PDF-")

// IsPDF 按魔数嗅探文件类型，扩展名与 Content-Type 均不可信
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// ExtractPDF 抽取 PDF 纯文本；魔数不符返回 CorruptDocumentError，
// 解析成功但无有效文本返回 ExtractionError，两者均为永久错误
func ExtractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &material.CorruptDocumentError{Reason: "文件内容为空"}
	}
	if !IsPDF(data) {
		return "", &material.CorruptDocumentError{Reason: "缺少 %PDF 魔数头"}
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &material.CorruptDocumentError{Reason: "PDF 解析失败: " + err.Error()}
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", &material.ExtractionError{Reason: "PDF 文本抽取失败: " + err.Error()}
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", &material.ExtractionError{Reason: "PDF 文本读取失败: " + err.Error()}
	}

	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return "", &material.ExtractionError{Reason: "文档无有效文本"}
	}
	return text, nil
}

var excessiveNewlines = regexp.MustCompile(`\n{3,}`)

// Normalize 规整抽取产物：逐行 trim、压缩连续空行，并做字母数字占比的质量检查
func Normalize(materialId, text string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	out := strings.Join(lines, "\n")
	out = excessiveNewlines.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	if ratio := alnumRatio(out); ratio < alnumRatioFloor {
		zlog.Warn("抽取文本字母数字占比偏低，质量可能有问题",
			zap.String("material_id", materialId), zap.Float64("ratio", ratio))
	}
	return out
}

func alnumRatio(s string) float64 {
	if s == "" {
		return 0
	}
	total, alnum := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}
