package mapreduce

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RunReducer executes one reducer sub-task (§4.5) and sends exactly one
// WorkerReport on report, with the same panic-boundary guarantee as
// RunMapper.
func RunReducer(s *Storage, loader Loader, jobDir string, subtaskID int, inputPaths []string, artifactPath string, report chan<- WorkerReport) {
	defer func() {
		if r := recover(); r != nil {
			report <- WorkerReport{SubtaskID: subtaskID, Success: false, Payload: fmt.Sprintf("panic: %v", r)}
		}
	}()

	resultPath, err := doReduce(s, loader, jobDir, subtaskID, inputPaths, artifactPath)
	if err != nil {
		report <- WorkerReport{SubtaskID: subtaskID, Success: false, Payload: err.Error()}
		return
	}
	report <- WorkerReport{SubtaskID: subtaskID, Success: true, Payload: resultPath}
}

func doReduce(s *Storage, loader Loader, jobDir string, subtaskID int, inputPaths []string, artifactPath string) (string, error) {
	merged := make(map[string][]string)
	for _, p := range inputPaths {
		data, err := s.ReadAll(p)
		if err != nil {
			return "", err
		}
		var part map[string][]string
		if err := json.Unmarshal(data, &part); err != nil {
			return "", err
		}
		for k, v := range part {
			merged[k] = append(merged[k], v...)
		}
	}

	reducerFn, err := loader.LoadReducer(artifactPath)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged[k] = reducerFn(k, merged[k])
	}

	// encoding/json marshals string-keyed maps in ascending key order, so
	// the result file is key-ascending without a custom ordered type.
	data, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	resultPath := Join(jobDir, fmt.Sprintf("ret%d.json", subtaskID))
	if err := s.WriteAll(resultPath, data); err != nil {
		return "", err
	}
	return resultPath, nil
}
