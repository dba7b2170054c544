package config

import (
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// 常用语言代码，用于 CLI 提示
var commonLanguages = []string{
	"zh", "zh-TW", "en", "ja", "ko", "fr", "de", "es", "pt",
	"ru", "ar", "it", "nl", "pl", "tr", "vi", "th",
}

// LanguageName 返回语言代码的英文名称，无法解析时原样返回代码
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return display.English.Languages().Name(tag)
}

// CommonLanguages 返回常用语言代码与名称的有序列表
func CommonLanguages() [][2]string {
	out := make([][2]string, 0, len(commonLanguages))
	for _, code := range commonLanguages {
		out = append(out, [2]string{code, LanguageName(code)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
