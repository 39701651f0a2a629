package natmod

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatchLine(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"scalar", "static int x = 5;", "int x = 5;"},
		{"array", "static const float weights[3] = {1.0f, 2.0f, 3.0f};", "const float weights[3] = {1.0f, 2.0f, 3.0f};"},
		{"indented", "    static uint8_t buf[64];", "    uint8_t buf[64];"},
		{"first occurrence only", "static int static_count;", "int static_count;"},
		{"tab separated", "static\tint y;", "int y;"},
		{"function definition", "static void model_init(void) {", "static void model_init(void) {"},
		{"function prototype", "static int run(const float *in, float *out);", "static int run(const float *in, float *out);"},
		{"initializer call is treated as function", "static int n = count(1);", "static int n = count(1);"},
		{"not leading", "const static int z = 1;", "const static int z = 1;"},
		{"identifier prefix", "static_value = 1;", "static_value = 1;"},
		{"plain line", "int w = 2;", "int w = 2;"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PatchLine(tc.in))
		})
	}
}

func TestPatchStaticDecls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.c")
	src := "#include \"model.h\"\n" +
		"static const float w[2] = {1, 2};\r\n" +
		"static int state;\n" +
		"static void step(void) {\n" +
		"    state++;\n" +
		"}\n" +
		"static int tail;"
	writeFile(t, path, src)

	n, err := PatchStaticDecls(path)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	want := "#include \"model.h\"\n" +
		"const float w[2] = {1, 2};\r\n" +
		"int state;\n" +
		"static void step(void) {\n" +
		"    state++;\n" +
		"}\n" +
		"int tail;"
	require.Equal(t, want, readFile(t, path))
}

func TestPatchStaticDeclsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.c")
	writeFile(t, path, "static int a;\nstatic void f(void);\n")

	_, err := PatchStaticDecls(path)
	require.NoError(t, err)
	n, err := PatchStaticDecls(path)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "int a;\nstatic void f(void);\n", readFile(t, path))
}

func TestPatchStaticDeclsMissingFile(t *testing.T) {
	_, err := PatchStaticDecls(filepath.Join(t.TempDir(), "model.c"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSourceMissing))
}
