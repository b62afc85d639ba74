//go:build windows

package mapreduce

import "fmt"

// PluginLoader is unavailable on windows: the plugin package only supports
// linux, darwin and freebsd. The coordinator's server binary targets those
// platforms; this stub keeps the module buildable everywhere it's imported.
type PluginLoader struct{}

func (PluginLoader) LoadMapper(artifactPath string) (MapperFunc, error) {
	return nil, fmt.Errorf("%w: plugin loading unsupported on this platform", ErrArtifactLoad)
}

func (PluginLoader) LoadReducer(artifactPath string) (ReducerFunc, error) {
	return nil, fmt.Errorf("%w: plugin loading unsupported on this platform", ErrArtifactLoad)
}
