package reporting

import (
	"io"
	"strconv"

	"github.com/beevik/etree"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

func WriteCheckstyle(runID, outDir string, run *ir.Run) (string, error) {
	return writeFile(outDir, runID+".checkstyle.xml", func(w io.Writer) error {
		return EncodeCheckstyle(w, run)
	})
}

// EncodeCheckstyle writes findings grouped per file in Checkstyle XML, the
// format most CI annotators accept.
func EncodeCheckstyle(w io.Writer, run *ir.Run) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("checkstyle")
	root.CreateAttr("version", "8.0")

	files := map[string]*etree.Element{}
	for _, fl := range run.Files {
		el := root.CreateElement("file")
		el.CreateAttr("name", fl.Path)
		files[fl.Path] = el
	}
	for _, f := range run.Findings {
		el, ok := files[f.Source]
		if !ok {
			el = root.CreateElement("file")
			el.CreateAttr("name", f.Source)
			files[f.Source] = el
		}
		e := el.CreateElement("error")
		e.CreateAttr("line", strconv.Itoa(f.Line))
		e.CreateAttr("severity", checkstyleSeverity(f.Severity))
		e.CreateAttr("message", f.Message)
		e.CreateAttr("source", "mongo-safe."+f.RuleID)
	}

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func checkstyleSeverity(s string) string {
	switch sevToLevel(s) {
	case "error":
		return "error"
	case "warning":
		return "warning"
	default:
		return "info"
	}
}
