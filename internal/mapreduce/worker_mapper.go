package mapreduce

import (
	"encoding/json"
	"fmt"
)

// RunMapper executes one mapper sub-task (§4.4) and sends exactly one
// WorkerReport on report. It never panics past its own boundary: a
// recovered panic is reported as a failure like any other error.
func RunMapper(s *Storage, loader Loader, jobDir string, subtaskID int, inputFile, artifactPath string, reducerNum int, report chan<- WorkerReport) {
	defer func() {
		if r := recover(); r != nil {
			report <- WorkerReport{SubtaskID: subtaskID, Success: false, Payload: fmt.Sprintf("panic: %v", r)}
		}
	}()

	resultDir, err := doMap(s, loader, jobDir, subtaskID, inputFile, artifactPath, reducerNum)
	if err != nil {
		report <- WorkerReport{SubtaskID: subtaskID, Success: false, Payload: err.Error()}
		return
	}
	report <- WorkerReport{SubtaskID: subtaskID, Success: true, Payload: resultDir}
}

func doMap(s *Storage, loader Loader, jobDir string, subtaskID int, inputFile, artifactPath string, reducerNum int) (string, error) {
	content, err := s.ReadAll(inputFile)
	if err != nil {
		return "", err
	}

	mapperFn, err := loader.LoadMapper(artifactPath)
	if err != nil {
		return "", err
	}
	out := mapperFn(string(content))

	resultDir := Join(jobDir, fmt.Sprintf("%d", subtaskID))
	if err := s.CreateDir(resultDir); err != nil {
		return "", err
	}

	partitions := make([]map[string][]string, reducerNum)
	for i := range partitions {
		partitions[i] = make(map[string][]string)
	}
	for k, v := range out {
		idx := PartitionOf(k, reducerNum)
		partitions[idx][k] = v
	}

	for i, part := range partitions {
		data, err := json.Marshal(part)
		if err != nil {
			return "", err
		}
		path := Join(resultDir, fmt.Sprintf("%d.json", i))
		if err := s.WriteAll(path, data); err != nil {
			return "", err
		}
	}

	return resultDir, nil
}
