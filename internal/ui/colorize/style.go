package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	_ = OffsetdumpDark
}

// OffsetdumpDark is the highlighting style for generated headers and
// disassembly.
var OffsetdumpDark = styles.Register(chroma.MustNewStyle("offsetdump-dark", chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",
	chroma.Background:     "bg:#1e1e1e",
	chroma.Comment:        "#6A9955",
	chroma.CommentPreproc: "#C586C0",

	chroma.Keyword:       "#569CD6",
	chroma.KeywordType:   "#4EC9B0",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.Name:          "#9CDCFE",
	chroma.NameBuiltin:   "#7C9C9D", // registers
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameNamespace: "#4EC9B0",
	chroma.NameFunction:  "#FFFFFF", // nasm tokenizes mnemonics as functions

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.NameLabel:   "#FFD700",
	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
