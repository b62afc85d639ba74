//go:build !windows

package mapreduce

import (
	"fmt"
	"plugin"
)

// PluginLoader resolves Mapper/Reducer symbols from a Go plugin (.so),
// per §6's artifact interface. plugin.Open caches by path internally, so
// repeated loads of the same artifact within one process are cheap after
// the first.
type PluginLoader struct{}

func (PluginLoader) LoadMapper(artifactPath string) (MapperFunc, error) {
	p, err := plugin.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArtifactLoad, artifactPath, err)
	}
	sym, err := p.Lookup("Mapper")
	if err != nil {
		return nil, fmt.Errorf("%w: lookup Mapper in %s: %v", ErrArtifactLoad, artifactPath, err)
	}
	fn, ok := sym.(func(string) map[string][]string)
	if !ok {
		return nil, fmt.Errorf("%w: Mapper in %s has wrong signature", ErrArtifactLoad, artifactPath)
	}
	return fn, nil
}

func (PluginLoader) LoadReducer(artifactPath string) (ReducerFunc, error) {
	p, err := plugin.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArtifactLoad, artifactPath, err)
	}
	sym, err := p.Lookup("Reducer")
	if err != nil {
		return nil, fmt.Errorf("%w: lookup Reducer in %s: %v", ErrArtifactLoad, artifactPath, err)
	}
	fn, ok := sym.(func(string, []string) []string)
	if !ok {
		return nil, fmt.Errorf("%w: Reducer in %s has wrong signature", ErrArtifactLoad, artifactPath)
	}
	return fn, nil
}
