package engine

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/rules"
)

func builtin() []*rules.Rule { return rules.Builtin().All() }

func ruleIDs(fs []Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Rule.ID)
	}
	return out
}

func TestScan_WhereInjection(t *testing.T) {
	src := `db.users.find({ $where: "this.username === '" + username + "'" });`
	fs := Scan(src, builtin(), "app/login.js")

	require.NotEmpty(t, fs)
	var hit *Finding
	for i := range fs {
		if fs[i].Rule.ID == "MONGO-WHERE-INJECTION" {
			hit = &fs[i]
		}
	}
	require.NotNil(t, hit, "got %v", ruleIDs(fs))
	assert.Equal(t, rules.SeverityHigh, hit.Rule.Severity)
	assert.Equal(t, 1, hit.Line)
	assert.Equal(t, src, hit.Text)
}

func TestScan_UnconstrainedQuery(t *testing.T) {
	fs := Scan("db.users.find({});", builtin(), "")
	require.Contains(t, ruleIDs(fs), "MONGO-UNCONSTRAINED-QUERY")
	for _, f := range fs {
		if f.Rule.ID == "MONGO-UNCONSTRAINED-QUERY" {
			assert.Equal(t, rules.SeverityMedium, f.Rule.Severity)
			assert.Equal(t, 1, f.Line)
		}
	}
}

func TestScan_SafeQuery(t *testing.T) {
	src := `const users = await db.users.find({ active: true, role: "user" });`
	for _, f := range Scan(src, builtin(), "") {
		assert.NotEqual(t, "MONGO-UNCONSTRAINED-QUERY", f.Rule.ID)
		assert.NotEqual(t, rules.CategoryInjection, f.Rule.Category, "unexpected %s", f.Rule.ID)
	}
}

func TestScan_CatalogSourceIsSkipped(t *testing.T) {
	var b strings.Builder
	for _, r := range builtin() {
		b.WriteString(r.UnsafeExample)
		b.WriteByte('\n')
	}
	text := b.String()

	require.NotEmpty(t, Scan(text, builtin(), "src/app.js"))
	for _, id := range []string{
		"internal/rules/catalog.go",
		`C:\work\mongo-safe\internal\rules\catalog.go`,
		"rules/catalog.go",
		"out/catalog.yaml",
	} {
		assert.Empty(t, Scan(text, builtin(), id), id)
	}
}

func TestScan_OwnCatalogFile(t *testing.T) {
	b, err := os.ReadFile("../rules/catalog.go")
	require.NoError(t, err)
	assert.Empty(t, Scan(string(b), builtin(), "../rules/catalog.go"))
	assert.NotEmpty(t, Scan(string(b), builtin(), "copy/of/table.go"))
}

func TestIsCatalogSource(t *testing.T) {
	cases := map[string]bool{
		"":                          false,
		"catalog.go":                false,
		"myrules/catalog.go":        false,
		"rules/catalog.go":          true,
		"a/b/rules/catalog.go":      true,
		`a\rules\catalog.go`:        true,
		"catalog.yaml":              true,
		"exports/catalog.yaml":      true,
		"exports/mycatalog.yaml":    false,
		"internal/rules/catalog.js": false,
	}
	for id, want := range cases {
		assert.Equal(t, want, IsCatalogSource(id), id)
	}
}

func TestScan_LineFidelity(t *testing.T) {
	src := "const a = 1;\n\n   db.users.find({});   \nconst b = 2;"
	fs := Scan(src, builtin(), "")
	require.NotEmpty(t, fs)

	lines := strings.Split(src, "\n")
	for _, f := range fs {
		assert.Equal(t, 3, f.Line)
		assert.Equal(t, strings.TrimSpace(lines[f.Line-1]), f.Text)
		assert.Equal(t, "db.users.find({});", f.Text)
	}
}

func TestScan_Ordering(t *testing.T) {
	rs := builtin()
	src := strings.Join([]string{
		`db.users.find({});`,
		`const x = 1;`,
		`db.users.findOne({ username: req.body.username, password: { $ne: null } });`,
		`db.users.find({ $where: "this.a == '" + a + "'" });`,
	}, "\n")
	fs := Scan(src, rs, "")
	require.NotEmpty(t, fs)

	pos := map[*rules.Rule]int{}
	for i, r := range rs {
		pos[r] = i
	}
	for i := 1; i < len(fs); i++ {
		prev, cur := fs[i-1], fs[i]
		if prev.Line == cur.Line {
			assert.Less(t, pos[prev.Rule], pos[cur.Rule])
		} else {
			assert.Less(t, prev.Line, cur.Line)
		}
	}
}

func TestScan_RuleOrderFollowsInput(t *testing.T) {
	rs := builtin()
	reversed := make([]*rules.Rule, len(rs))
	for i, r := range rs {
		reversed[len(rs)-1-i] = r
	}
	src := `db.users.findOne({ username: req.body.username, password: { $ne: null } });`

	fwd := ruleIDs(Scan(src, rs, ""))
	rev := ruleIDs(Scan(src, reversed, ""))
	require.Greater(t, len(fwd), 1)
	require.Len(t, rev, len(fwd))
	for i := range fwd {
		assert.Equal(t, fwd[i], rev[len(rev)-1-i])
	}
}

func TestScan_NoCrossLineMatch(t *testing.T) {
	// "$where:" and the concatenation sit on different lines.
	src := "db.users.find({ $where:\n  \"this.name == '\" + name + \"'\" });"
	for _, f := range Scan(src, builtin(), "") {
		assert.NotEqual(t, "MONGO-WHERE-INJECTION", f.Rule.ID)
	}
	// CR is not a separator.
	fs := Scan("const a = 1;\rdb.users.find({});", builtin(), "")
	for _, f := range fs {
		assert.Equal(t, 1, f.Line)
	}
}

func TestScan_Deterministic(t *testing.T) {
	src := "db.users.find({});\nconst u = await User.findOne(req.body);\nmongoose.set(\"strictQuery\", false);"
	a := Scan(src, builtin(), "x.js")
	b := Scan(src, builtin(), "x.js")
	assert.Equal(t, a, b)
}

func TestScan_Empty(t *testing.T) {
	assert.Empty(t, Scan("", builtin(), ""))
	assert.Empty(t, Scan("db.users.find({});", nil, ""))
	assert.Empty(t, Scan("\n\n\n", builtin(), ""))
}

func TestScan_FindingReferencesCatalogRule(t *testing.T) {
	c := rules.Builtin()
	fs := Scan("db.users.find({});", c.All(), "")
	require.NotEmpty(t, fs)
	r, ok := c.Get(fs[0].Rule.ID)
	require.True(t, ok)
	assert.Same(t, r, fs[0].Rule)
}

func FuzzScanNoPanic(f *testing.F) {
	for _, r := range builtin() {
		f.Add(r.UnsafeExample, "")
		f.Add(r.SafeExample, "rules/catalog.go")
	}
	f.Add("\x00\xff\n\r\n", `C:\x`)
	rs := builtin()
	f.Fuzz(func(t *testing.T, text, source string) {
		fs := Scan(text, rs, source)
		lines := strings.Split(text, "\n")
		for i, fd := range fs {
			if fd.Line < 1 || fd.Line > len(lines) {
				t.Fatalf("line %d out of range 1..%d", fd.Line, len(lines))
			}
			if fd.Text != strings.TrimSpace(fd.Text) {
				t.Fatalf("untrimmed text %q", fd.Text)
			}
			if i > 0 && fs[i-1].Line > fd.Line {
				t.Fatalf("findings out of line order at %d", i)
			}
		}
	})
}

func BenchmarkScan(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		for _, r := range builtin() {
			sb.WriteString(r.UnsafeExample)
			sb.WriteByte('\n')
			sb.WriteString(r.SafeExample)
			sb.WriteByte('\n')
		}
	}
	text := sb.String()
	rs := builtin()
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Scan(text, rs, "bench.js")
	}
}
