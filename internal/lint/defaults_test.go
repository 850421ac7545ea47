package lint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultInvocations_Table(t *testing.T) {
	want := []string{
		"flake8_pkg", "flake8_scripts", "flake8_qapi",
		"isort_pkg", "isort_scripts", "isort_qapi", "isort_qapi_sphinx",
		"mypy_pkg", "mypy_scripts", "mypy_qapi", "mypy_iotests",
		"pylint_pkg", "pylint_scripts", "pylint_qapi", "pylint_iotests",
	}
	assert.Equal(t, want, DefaultSuite().Names())
}

func TestDefaultInvocations_Rows(t *testing.T) {
	s := DefaultSuite()

	tests := []Invocation{
		{Name: "flake8_qapi", Tool: ToolFlake8, Args: []string{
			"../scripts/qapi/", "../docs/sphinx/qapidoc.py", "../docs/sphinx/qapi_domain.py",
		}},
		{Name: "isort_qapi_sphinx", Tool: ToolIsort, Args: []string{
			"--sp", ".", "-c", "-p", "compat", "../docs/sphinx/qapi_domain.py", "../docs/sphinx/qapidoc.py",
		}},
		{Name: "mypy_pkg", Tool: ToolMypy, Args: []string{"-p", "qemu"}},
		{Name: "mypy_iotests", Tool: ToolModule, Module: "linters", Args: []string{"--mypy"}, Dir: "../tests/qemu-iotests/"},
		{Name: "pylint_qapi", Tool: ToolPylint, Args: []string{
			"--rcfile=../scripts/qapi/pylintrc", "../scripts/qapi/",
			"../docs/sphinx/qapidoc.py", "../docs/sphinx/qapi_domain.py",
		}, Env: map[string]string{"SETUPTOOLS_USE_DISTUTILS": "stdlib"}},
		{Name: "pylint_iotests", Tool: ToolModule, Module: "linters", Args: []string{"--pylint"},
			Dir: "../tests/qemu-iotests/", Env: map[string]string{"SETUPTOOLS_USE_DISTUTILS": "stdlib"}},
	}
	for _, want := range tests {
		t.Run(want.Name, func(t *testing.T) {
			got, ok := lookup(s, want.Name)
			require.True(t, ok)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("invocation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultInvocations_OnlyPylintGetsDistutilsEnv(t *testing.T) {
	for _, inv := range DefaultInvocations() {
		isPylint := inv.Tool == ToolPylint || inv.Name == "pylint_iotests"
		if isPylint {
			assert.Equal(t, DistutilsEnv, inv.Env, inv.Name)
		} else {
			assert.Empty(t, inv.Env, inv.Name)
		}
	}
}

func TestDefaultInvocations_EnvIsNotShared(t *testing.T) {
	invs := DefaultInvocations()
	pkg, _ := lookup(mustSuite(t, invs...), "pylint_pkg")
	pkg.Env["SETUPTOOLS_USE_DISTUTILS"] = "local"

	again := DefaultSuite()
	scripts, _ := lookup(again, "pylint_scripts")
	assert.Equal(t, "stdlib", scripts.Env["SETUPTOOLS_USE_DISTUTILS"])
	assert.Equal(t, "stdlib", DistutilsEnv["SETUPTOOLS_USE_DISTUTILS"])
}
