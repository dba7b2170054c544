package epub

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, content string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	require.NoError(t, err)
	return doc
}

func TestExtractUnits(t *testing.T) {
	t.Run("按文档顺序提取块级单元", func(t *testing.T) {
		doc := mustDoc(t, `<html><body>
			<h1>Chapter One</h1>
			<p>First paragraph.</p>
			<ul><li>Item one</li><li>Item two</li></ul>
			<figcaption>A caption</figcaption>
		</body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 5)
		assert.Equal(t, "Chapter One", units[0].PlainText)
		assert.Equal(t, "First paragraph.", units[1].PlainText)
		assert.Equal(t, "Item one", units[2].PlainText)
		assert.Equal(t, "Item two", units[3].PlainText)
		assert.Equal(t, "A caption", units[4].PlainText)
		for i, u := range units {
			assert.Equal(t, i, u.Ordinal)
		}
	})

	t.Run("只取最外层块级节点", func(t *testing.T) {
		doc := mustDoc(t, `<html><body>
			<blockquote><p>Quoted text.</p></blockquote>
			<ul><li><p>Wrapped item.</p></li></ul>
		</body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 2)
		// 外层节点持有内层标记，内层不再单独成为单元
		assert.Contains(t, units[0].RawMarkup, "<p>")
		assert.Equal(t, "Quoted text.", units[0].PlainText)
		assert.Equal(t, "Wrapped item.", units[1].PlainText)
	})

	t.Run("保留内联标记", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><p>Hello <em>world</em>!</p></body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 1)
		assert.Equal(t, "Hello <em>world</em>!", units[0].RawMarkup)
		assert.Equal(t, "Hello world!", units[0].PlainText)
	})

	t.Run("表格单元格逐格提取", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><table>
			<tr><th>Name</th><th>Value</th></tr>
			<tr><td>alpha</td><td>one</td></tr>
		</table></body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 4)
		assert.Equal(t, "Name", units[0].PlainText)
		assert.Equal(t, "one", units[3].PlainText)
	})

	t.Run("跳过已有译文节点", func(t *testing.T) {
		doc := mustDoc(t, `<html><body>
			<p>Original text here.</p>
			<p class="et-translation" lang="zh">已有译文</p>
		</body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 1)
		assert.Equal(t, "Original text here.", units[0].PlainText)
	})

	t.Run("跳过空白单元", func(t *testing.T) {
		doc := mustDoc(t, `<html><body>
			<p>   </p>
			<p></p>
			<p>real</p>
		</body></html>`)

		units := ExtractUnits(doc)
		require.Len(t, units, 1)
		assert.Equal(t, "real", units[0].PlainText)
	})

	t.Run("重复提取结果一致且不改动文档", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><p>one</p><p>two</p></body></html>`)

		first := ExtractUnits(doc)
		second := ExtractUnits(doc)
		require.Len(t, first, 2)
		require.Len(t, second, 2)
		for i := range first {
			assert.Equal(t, first[i].PlainText, second[i].PlainText)
			assert.Equal(t, first[i].RawMarkup, second[i].RawMarkup)
		}
	})
}

func TestInsertTranslation(t *testing.T) {
	t.Run("译文插入原文之后", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><p id="p1" class="body-text">Hello <em>world</em>!</p></body></html>`)
		units := ExtractUnits(doc)
		require.Len(t, units, 1)

		InsertTranslation(units[0], "你好<em>世界</em>！", "zh")

		html, err := doc.Html()
		require.NoError(t, err)
		assert.Contains(t, html, "Hello <em>world</em>!")
		assert.Contains(t, html, "你好<em>世界</em>！")

		trans := doc.Find("p.et-translation")
		require.Equal(t, 1, trans.Length())
		// class 合并，id 不复制，lang 设为目标语言
		assert.True(t, trans.HasClass("body-text"))
		_, hasID := trans.Attr("id")
		assert.False(t, hasID)
		lang, _ := trans.Attr("lang")
		assert.Equal(t, "zh", lang)
	})

	t.Run("插入后重新提取跳过译文", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><p>one</p><p>two</p></body></html>`)
		units := ExtractUnits(doc)
		require.Len(t, units, 2)

		for _, u := range units {
			InsertTranslation(u, "译文-"+u.PlainText, "zh")
		}

		again := ExtractUnits(doc)
		require.Len(t, again, 2)
		assert.Equal(t, "one", again[0].PlainText)
		assert.Equal(t, "two", again[1].PlainText)
	})
}

func TestInjectStylesheet(t *testing.T) {
	doc := mustDoc(t, `<html><head><title>t</title></head><body><p>x</p></body></html>`)

	InjectStylesheet(doc, "../"+StylesheetName)
	InjectStylesheet(doc, "../"+StylesheetName)

	links := doc.Find(`link[rel="stylesheet"]`)
	assert.Equal(t, 1, links.Length())
	href, _ := links.Attr("href")
	assert.Equal(t, "../"+StylesheetName, href)
}

func TestStylesheetHref(t *testing.T) {
	cases := []struct {
		sectionPath string
		opfDir      string
		want        string
	}{
		{"OEBPS/ch1.xhtml", "OEBPS", StylesheetName},
		{"OEBPS/text/ch1.xhtml", "OEBPS", "../" + StylesheetName},
		{"OEBPS/a/b/ch1.xhtml", "OEBPS", "../../" + StylesheetName},
		{"ch1.xhtml", "", StylesheetName},
		{"text/ch1.xhtml", "", "../" + StylesheetName},
		// 章节不在 OPF 目录下时退回同目录引用
		{"other/ch1.xhtml", "OEBPS", StylesheetName},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StylesheetHref(c.sectionPath, c.opfDir), "%s / %s", c.sectionPath, c.opfDir)
	}
}

func TestSerialize(t *testing.T) {
	original := []byte(`<?xml version="1.0" encoding="utf-8"?>
<html><head><title>t</title></head><body><p>x</p></body></html>`)

	doc := mustDoc(t, string(original))
	out, err := Serialize(doc, original)
	require.NoError(t, err)

	// XML 声明在序列化后补回
	assert.True(t, strings.HasPrefix(string(out), `<?xml version="1.0" encoding="utf-8"?>`))
	assert.Contains(t, string(out), "<p>x</p>")
}
