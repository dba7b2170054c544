package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
)

// ManifestItem OPF manifest 中的一项
type ManifestItem struct {
	ID        string
	Href      string // 相对于 OPF 文件的路径
	MediaType string
}

// Section 按 spine 顺序排列的一个章节
type Section struct {
	ID        string
	Href      string // 相对于 OPF 文件的路径
	Path      string // ZIP 内绝对路径，跨运行稳定，作为进度记录的键
	MediaType string
	Content   []byte
}

// Metadata EPUB 元数据
type Metadata struct {
	Title    string
	Language string
	OPFDir   string // OPF 所在目录（ZIP 内），用于解析相对路径
}

// Book 解析后的 EPUB
type Book struct {
	Meta     Metadata
	Sections []*Section
	Manifest map[string]ManifestItem
	OPFPath  string
	// 非章节资源（CSS、图片、META-INF 等）原样保留
	Assets map[string][]byte
}

type containerXML struct {
	RootFiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata struct {
		Title    string `xml:"title"`
		Language string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// Parse 解析 EPUB 文件内容
func Parse(input io.Reader) (*Book, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("读取 EPUB 失败: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 EPUB（ZIP）失败: %w", err)
	}

	files := make(map[string][]byte, len(zipReader.File))
	for _, f := range zipReader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", f.Name, err)
		}
		files[f.Name] = content
	}

	containerData, ok := files["META-INF/container.xml"]
	if !ok {
		return nil, fmt.Errorf("缺少 META-INF/container.xml")
	}
	opfPath, err := findOPFPath(containerData)
	if err != nil {
		return nil, err
	}

	opfData, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("找不到 OPF 文件 %s", opfPath)
	}

	opfDir := path.Dir(opfPath)
	if opfDir == "." {
		opfDir = ""
	}

	var pkg opfPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, fmt.Errorf("解析 OPF 失败: %w", err)
	}

	book := &Book{
		Meta: Metadata{
			Title:    pkg.Metadata.Title,
			Language: pkg.Metadata.Language,
			OPFDir:   opfDir,
		},
		Manifest: make(map[string]ManifestItem, len(pkg.Manifest.Items)),
		OPFPath:  opfPath,
		Assets:   make(map[string][]byte),
	}

	for _, item := range pkg.Manifest.Items {
		book.Manifest[item.ID] = ManifestItem{
			ID:        item.ID,
			Href:      item.Href,
			MediaType: item.MediaType,
		}
	}

	// 按 spine 顺序构建章节列表
	sectionPaths := make(map[string]bool)
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := book.Manifest[ref.IDRef]
		if !ok {
			continue
		}
		if item.MediaType != "application/xhtml+xml" && item.MediaType != "text/html" {
			continue
		}
		absPath := joinPath(opfDir, item.Href)
		sectionPaths[absPath] = true
		book.Sections = append(book.Sections, &Section{
			ID:        item.ID,
			Href:      item.Href,
			Path:      absPath,
			MediaType: item.MediaType,
			Content:   files[absPath],
		})
	}

	// 其余文件作为资源原样保留
	for name, content := range files {
		if sectionPaths[name] {
			continue
		}
		book.Assets[name] = content
	}

	return book, nil
}

func findOPFPath(containerData []byte) (string, error) {
	var c containerXML
	if err := xml.Unmarshal(containerData, &c); err != nil {
		return "", fmt.Errorf("解析 container.xml 失败: %w", err)
	}
	for _, rf := range c.RootFiles {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", fmt.Errorf("container.xml 中未找到 rootfile")
}

func joinPath(baseDir, href string) string {
	if baseDir == "" {
		return href
	}
	return path.Join(baseDir, href)
}
