package lint

// DistutilsEnv is applied to pylint runs only.
//
// Setuptools v60 introduced the SETUPTOOLS_USE_DISTUTILS=stdlib workaround;
// stdlib distutils was removed in Python 3.12. Some Fedora/Debian setups
// still rely on the distro-patched distutils shipped with CPython, and
// pylint breaks there without it.
var DistutilsEnv = map[string]string{"SETUPTOOLS_USE_DISTUTILS": "stdlib"}

// DefaultSuiteName names the built-in table.
const DefaultSuiteName = "default"

// DefaultInvocations returns the built-in table, resolved relative to a
// Python source root that has a qemu/ package, a scripts/ directory, and
// sibling ../scripts/qapi, ../docs/sphinx and ../tests/qemu-iotests trees.
func DefaultInvocations() []Invocation {
	qapiSphinx := []string{"../docs/sphinx/qapidoc.py", "../docs/sphinx/qapi_domain.py"}

	return []Invocation{
		{Name: "flake8_pkg", Tool: ToolFlake8, Args: []string{"qemu/"}},
		{Name: "flake8_scripts", Tool: ToolFlake8, Args: []string{"scripts/"}},
		{Name: "flake8_qapi", Tool: ToolFlake8, Args: append([]string{"../scripts/qapi/"}, qapiSphinx...)},

		{Name: "isort_pkg", Tool: ToolIsort, Args: []string{"-c", "qemu/"}},
		{Name: "isort_scripts", Tool: ToolIsort, Args: []string{"-c", "scripts/"}},
		{Name: "isort_qapi", Tool: ToolIsort, Args: []string{"--sp", ".", "-c", "../scripts/qapi/"}},
		// -p compat: treat 'compat' as a local module, not third-party.
		{Name: "isort_qapi_sphinx", Tool: ToolIsort, Args: []string{
			"--sp", ".", "-c", "-p", "compat",
			"../docs/sphinx/qapi_domain.py", "../docs/sphinx/qapidoc.py",
		}},

		{Name: "mypy_pkg", Tool: ToolMypy, Args: []string{"-p", "qemu"}},
		{Name: "mypy_scripts", Tool: ToolMypy, Args: []string{"scripts/"}},
		{Name: "mypy_qapi", Tool: ToolMypy, Args: []string{"../scripts/qapi"}},
		{Name: "mypy_iotests", Tool: ToolModule, Module: "linters", Args: []string{"--mypy"}, Dir: "../tests/qemu-iotests/"},

		{Name: "pylint_pkg", Tool: ToolPylint, Args: []string{"qemu/"}, Env: distutilsEnv()},
		{Name: "pylint_scripts", Tool: ToolPylint, Args: []string{"scripts/"}, Env: distutilsEnv()},
		{Name: "pylint_qapi", Tool: ToolPylint, Args: append([]string{
			"--rcfile=../scripts/qapi/pylintrc", "../scripts/qapi/",
		}, qapiSphinx...), Env: distutilsEnv()},
		{Name: "pylint_iotests", Tool: ToolModule, Module: "linters", Args: []string{"--pylint"}, Dir: "../tests/qemu-iotests/", Env: distutilsEnv()},
	}
}

// distutilsEnv returns a fresh copy so callers may edit one invocation's env.
func distutilsEnv() map[string]string {
	env := make(map[string]string, len(DistutilsEnv))
	for k, v := range DistutilsEnv {
		env[k] = v
	}
	return env
}
