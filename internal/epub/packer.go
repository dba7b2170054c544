package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// Pack 把翻译后的章节内容重新打包为 EPUB。
// translated 以章节 ZIP 内路径为键；未在其中的章节原样写回，
// 部分章节失败时已翻译内容仍然正常输出。
func Pack(book *Book, translated map[string][]byte, output io.Writer) error {
	zw := zip.NewWriter(output)

	// mimetype 必须是首个成员且不压缩
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("写入 mimetype 失败: %w", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		return fmt.Errorf("写入 mimetype 失败: %w", err)
	}

	cssPath := StylesheetName
	if book.Meta.OPFDir != "" {
		cssPath = book.Meta.OPFDir + "/" + StylesheetName
	}

	for name, content := range book.Assets {
		// mimetype 已写入，样式表稍后统一写入，重复打包时不产生重名成员
		if name == "mimetype" || name == cssPath {
			continue
		}
		if name == book.OPFPath {
			content = patchOPF(content, book.Meta.Title)
		}
		if err := writeEntry(zw, name, content); err != nil {
			return err
		}
	}
	if err := writeEntry(zw, cssPath, []byte(Stylesheet)); err != nil {
		return err
	}

	for _, sec := range book.Sections {
		content := sec.Content
		if c, ok := translated[sec.Path]; ok {
			content = c
		}
		if err := writeEntry(zw, sec.Path, content); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("关闭 EPUB 失败: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	return nil
}

const bilingualSuffix = " [Bilingual]"

// patchOPF 更新 OPF：书名追加双语后缀、manifest 注册样式表。
// 只做定点拼接，不整体重排 OPF，避免动到未建模的元数据。
func patchOPF(content []byte, title string) []byte {
	s := string(content)

	if title != "" && !strings.Contains(s, bilingualSuffix) {
		if start := strings.Index(s, "<dc:title"); start >= 0 {
			if end := strings.Index(s[start:], "</dc:title>"); end >= 0 {
				insert := start + end
				s = s[:insert] + bilingualSuffix + s[insert:]
			}
		}
	}

	if !strings.Contains(s, `id="et-translation-css"`) {
		item := fmt.Sprintf(`<item id="et-translation-css" href="%s" media-type="text/css"/>`, StylesheetName)
		if idx := strings.Index(s, "</manifest>"); idx >= 0 {
			s = s[:idx] + "    " + item + "\n    " + s[idx:]
		}
	}

	return []byte(s)
}
