package epub

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 包裹可译文本的内联标签，编码为成对标记 <gN>…</gN>
var transparentTags = map[string]bool{
	"em": true, "strong": true, "b": true, "i": true, "u": true,
	"a": true, "span": true, "small": true, "big": true,
	"abbr": true, "cite": true, "q": true, "s": true, "del": true, "ins": true,
}

// 自包含的内联标签，整体替换为单个标记 [OT:N]，内容不暴露给翻译引擎
var opaqueTags = map[string]bool{
	"br": true, "img": true, "sup": true, "sub": true, "wbr": true,
}

// 超过该深度的嵌套按不透明处理，不再信任输入的良构性
const maxInlineDepth = 16

// Placeholder 单个占位符的还原信息
type Placeholder struct {
	ID       int
	Element  string           // 标签名（透明元素）
	Attrs    []html.Attribute // 按原始顺序保存的属性（透明元素）
	Opaque   bool
	Original string           // 原始标记全文（不透明元素）
}

// PlaceholderMap 一个翻译单元的占位符表，id 按文档顺序从 0 递增
type PlaceholderMap struct {
	entries []*Placeholder
}

// Len 占位符数量
func (m *PlaceholderMap) Len() int { return len(m.entries) }

// Get 按 id 取占位符，越界返回 nil
func (m *PlaceholderMap) Get(id int) *Placeholder {
	if id < 0 || id >= len(m.entries) {
		return nil
	}
	return m.entries[id]
}

func (m *PlaceholderMap) reserve() *Placeholder {
	p := &Placeholder{ID: len(m.entries)}
	m.entries = append(m.entries, p)
	return p
}

// Codec 占位符编解码器。
// Encode 把内联标记折叠成近纯文本，Decode 围绕引擎返回的文本重建原始标记；
// 对引擎丢弃、重复或错序标记的输出容错：最坏丢失一处内联样式，不丢正文。
type Codec struct{}

// NewCodec 创建编解码器
func NewCodec() *Codec {
	return &Codec{}
}

// Encode 把原始内部标记编码为带标记的纯文本和占位符表
func (c *Codec) Encode(rawMarkup string) (string, *PlaceholderMap, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(rawMarkup), ctx)
	if err != nil {
		return "", nil, fmt.Errorf("解析内联标记失败: %w", err)
	}

	pm := &PlaceholderMap{}
	var sb strings.Builder
	for _, n := range nodes {
		c.encodeNode(&sb, n, pm, 0)
	}
	return sb.String(), pm, nil
}

func (c *Codec) encodeNode(sb *strings.Builder, n *html.Node, pm *PlaceholderMap, depth int) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)

	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if transparentTags[name] && depth < maxInlineDepth {
			c.encodeTransparent(sb, n, pm, depth)
			return
		}
		// 不透明元素、未知元素和过深嵌套统一按原文保留
		c.encodeOpaque(sb, n, pm)

	case html.CommentNode:
		// 注释不可见，按不透明处理原样还原
		c.encodeOpaque(sb, n, pm)
	}
}

func (c *Codec) encodeTransparent(sb *strings.Builder, n *html.Node, pm *PlaceholderMap, depth int) {
	// 先占住 id 保持文档顺序，再递归子节点
	p := pm.reserve()

	var inner strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.encodeNode(&inner, child, pm, depth+1)
	}

	// 无可译内容的透明元素降级为不透明：空的成对标记难以可靠往返
	if strings.TrimSpace(inner.String()) == "" {
		p.Opaque = true
		p.Original = renderNode(n)
		fmt.Fprintf(sb, "[OT:%d]", p.ID)
		return
	}

	p.Element = strings.ToLower(n.Data)
	p.Attrs = append([]html.Attribute(nil), n.Attr...)
	fmt.Fprintf(sb, "<g%d>", p.ID)
	sb.WriteString(inner.String())
	fmt.Fprintf(sb, "</g%d>", p.ID)
}

func (c *Codec) encodeOpaque(sb *strings.Builder, n *html.Node, pm *PlaceholderMap) {
	p := pm.reserve()
	p.Opaque = true
	p.Original = renderNode(n)
	fmt.Fprintf(sb, "[OT:%d]", p.ID)
}

var leftoverMarkers = regexp.MustCompile(`\[OT:\d+\]|</?g\d+>`)

// Decode 用占位符表还原译文中的原始标记。
// 从最大 id 向最小 id 处理，内层标记先于外层还原，避免子串歧义；
// 成对标记缺失或错序时丢弃标记、保留其间文本，最后清除所有未还原的标记。
func (c *Codec) Decode(translated string, pm *PlaceholderMap) string {
	result := translated
	if pm == nil {
		return strings.TrimSpace(leftoverMarkers.ReplaceAllString(result, ""))
	}

	for id := pm.Len() - 1; id >= 0; id-- {
		p := pm.Get(id)
		if p.Opaque {
			marker := fmt.Sprintf("[OT:%d]", id)
			result = strings.Replace(result, marker, p.Original, 1)
			continue
		}

		openTok := fmt.Sprintf("<g%d>", id)
		closeTok := fmt.Sprintf("</g%d>", id)
		i := strings.Index(result, openTok)
		j := strings.Index(result, closeTok)

		if i >= 0 && j > i {
			inner := result[i+len(openTok) : j]
			rebuilt := buildOpenTag(p.Element, p.Attrs) + inner + "</" + p.Element + ">"
			result = result[:i] + rebuilt + result[j+len(closeTok):]
			continue
		}

		// 标记缺失或错序：只去掉标记，文本一律保留
		result = strings.ReplaceAll(result, openTok, "")
		result = strings.ReplaceAll(result, closeTok, "")
	}

	// 对引擎多产出的标记做一次清扫
	return leftoverMarkers.ReplaceAllString(result, "")
}

func buildOpenTag(name string, attrs []html.Attribute) string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(name)
	for _, a := range attrs {
		sb.WriteByte(' ')
		if a.Namespace != "" {
			sb.WriteString(a.Namespace)
			sb.WriteByte(':')
		}
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	return sb.String()
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
