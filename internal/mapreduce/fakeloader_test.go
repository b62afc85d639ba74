package mapreduce

import "fmt"

// fakeLoader maps artifact paths to in-process functions so tests never
// need a real plugin .so on disk.
type fakeLoader struct {
	mappers  map[string]MapperFunc
	reducers map[string]ReducerFunc
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{mappers: make(map[string]MapperFunc), reducers: make(map[string]ReducerFunc)}
}

func (f *fakeLoader) withMapper(path string, fn MapperFunc) *fakeLoader {
	f.mappers[path] = fn
	return f
}

func (f *fakeLoader) withReducer(path string, fn ReducerFunc) *fakeLoader {
	f.reducers[path] = fn
	return f
}

func (f *fakeLoader) LoadMapper(path string) (MapperFunc, error) {
	fn, ok := f.mappers[path]
	if !ok {
		return nil, fmt.Errorf("%w: no fake Mapper registered for %s", ErrArtifactLoad, path)
	}
	return fn, nil
}

func (f *fakeLoader) LoadReducer(path string) (ReducerFunc, error) {
	fn, ok := f.reducers[path]
	if !ok {
		return nil, fmt.Errorf("%w: no fake Reducer registered for %s", ErrArtifactLoad, path)
	}
	return fn, nil
}

func wordCountMapper(content string) map[string][]string {
	out := make(map[string][]string)
	word := ""
	flush := func() {
		if word != "" {
			out[word] = append(out[word], "1")
			word = ""
		}
	}
	for _, r := range content {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			word += string(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func sumReducer(key string, values []string) []string {
	return []string{fmt.Sprintf("%d", len(values))}
}
