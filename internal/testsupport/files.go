package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SampleTemplates is a small catalog covering the built-in categories.
const SampleTemplates = `templates:
  - id: legal-basic
    name: Legal consultation
    category: LegalConsultation
    keywords: [咨询, 律师]
    text: "{author}您好，关于{keyword}的问题欢迎私信详细说明。"
  - id: thanks
    name: Thanks
    category: Gratitude
    keywords: [谢谢, 感谢]
    text: "谢谢{author}的支持！"
  - id: generic
    name: Generic
    keywords: [合同]
    text: "您好{author}，已收到您关于{keyword}的留言。"
`

// WriteTemplates writes the catalog to the configured templates path.
func WriteTemplates(t testing.TB, path, catalog string) {
	t.Helper()
	if catalog == "" {
		catalog = SampleTemplates
	}
	WriteFile(t, path, catalog)
}
