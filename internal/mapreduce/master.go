package mapreduce

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Master is the per-job state machine described in §4.6. It owns its own
// sub-task arrays and a single shared report channel; nothing outside the
// Master goroutine mutates them.
type Master struct {
	TaskID       uint32
	TraceID      string
	JobDir       string
	InputDir     string
	ArtifactPath string
	ReducerNum   int

	Storage    *Storage
	WorkerPool *Pool
	Loader     Loader
	ServerAddr string
	Logger     zerolog.Logger

	mappers  []SubTask
	reducers []SubTask
}

// Run executes the full algorithm of §4.6 to completion: discovery,
// dispatch, join, reducer planning, dispatch, join, report, and cleanup.
// It never returns an error to its caller: terminal failures are reported
// to the Server over the wire (type-8) and Run simply returns.
func (m *Master) Run() {
	log := m.Logger.With().Uint32("task_id", m.TaskID).Str("trace_id", m.TraceID).Logger()

	inputs, err := m.Storage.ReadDir(m.InputDir)
	if err != nil {
		m.fail(log, fmt.Sprintf("discover mapper inputs: %v", err))
		return
	}
	m.mappers = make([]SubTask, len(inputs))
	for i, p := range inputs {
		m.mappers[i] = SubTask{SubtaskID: i, Role: RoleMapper, Status: StatusWaiting, InputRef: []string{p}}
	}
	log.Info().Int("mapper_count", len(m.mappers)).Msg("mapper discovery complete")

	reportCh := make(chan WorkerReport, len(m.mappers)+m.ReducerNum)

	log.Info().Msg("dispatching mappers")
	for i := range m.mappers {
		m.mappers[i].Status = StatusExecuting
		sub := m.mappers[i]
		m.WorkerPool.Submit(func() {
			RunMapper(m.Storage, m.Loader, m.JobDir, sub.SubtaskID, sub.InputRef[0], m.ArtifactPath, m.ReducerNum, reportCh)
		})
	}

	mapperErrors := m.join(reportCh, m.mappers)
	if mapperErrors == len(m.mappers) && len(m.mappers) > 0 {
		m.fail(log, "all mapper sub-tasks failed")
		return
	}
	log.Info().Int("errors", mapperErrors).Msg("mapper join complete")

	m.reducers = make([]SubTask, m.ReducerNum)
	for i := 0; i < m.ReducerNum; i++ {
		var inputs []string
		for _, mp := range m.mappers {
			if mp.Status == StatusCompleted {
				inputs = append(inputs, Join(mp.ResultRef, fmt.Sprintf("%d.json", i)))
			}
		}
		m.reducers[i] = SubTask{SubtaskID: i, Role: RoleReducer, Status: StatusWaiting, InputRef: inputs}
	}

	log.Info().Msg("dispatching reducers")
	for i := range m.reducers {
		m.reducers[i].Status = StatusExecuting
		sub := m.reducers[i]
		m.WorkerPool.Submit(func() {
			RunReducer(m.Storage, m.Loader, m.JobDir, sub.SubtaskID, sub.InputRef, m.ArtifactPath, reportCh)
		})
	}

	reducerErrors := m.join(reportCh, m.reducers)
	if reducerErrors == len(m.reducers) && len(m.reducers) > 0 {
		m.fail(log, "all reducer sub-tasks failed")
		return
	}
	log.Info().Int("errors", reducerErrors).Msg("reducer join complete")

	var resultPaths []string
	for _, r := range m.reducers {
		if r.Status == StatusCompleted {
			resultPaths = append(resultPaths, r.ResultRef)
		}
	}

	if err := m.report(log, resultPaths); err != nil {
		log.Error().Err(err).Msg("failed to report completion to server")
		return
	}

	m.cleanup(log)
}

// join drains exactly len(subs) reports off ch, updating each sub-task by
// its subtask_id, and returns the number that ended in StatusError.
func (m *Master) join(ch chan WorkerReport, subs []SubTask) int {
	errors := 0
	for i := 0; i < len(subs); i++ {
		rep := <-ch
		if rep.Success {
			subs[rep.SubtaskID].Status = StatusCompleted
			subs[rep.SubtaskID].ResultRef = rep.Payload
		} else {
			subs[rep.SubtaskID].Status = StatusError
			errors++
		}
	}
	return errors
}

// report dials the Server fresh, sends a type-7 "master completed" message,
// and blocks on that same connection awaiting the type-6 cleanup reply
// (§4.6 step 6, §6's message catalog).
func (m *Master) report(log zerolog.Logger, resultPaths []string) error {
	conn, err := net.Dial("tcp", m.ServerAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg := ProtocolMessage{
		MessageType: MsgMasterCompleted,
		TaskID:      m.TaskID,
		DataFile:    strings.Join(resultPaths, "|"),
	}
	if err := WriteMessage(conn, msg); err != nil {
		return err
	}
	log.Info().Strs("results", resultPaths).Msg("reported completion, awaiting cleanup signal")

	reply, err := ReadMessage(conn)
	if err != nil {
		return err
	}
	if reply.MessageType != MsgCleanup {
		return fmt.Errorf("mapreduce: master expected type-%d cleanup, got type-%d", MsgCleanup, reply.MessageType)
	}
	return nil
}

// fail dials the Server fresh and sends a type-8 "master failed" message,
// then best-effort cleans up local state.
func (m *Master) fail(log zerolog.Logger, reason string) {
	log.Error().Str("reason", reason).Msg("master aborting job")
	conn, err := net.Dial("tcp", m.ServerAddr)
	if err != nil {
		log.Error().Err(err).Msg("failed to report failure to server")
	} else {
		defer conn.Close()
		msg := ProtocolMessage{MessageType: MsgMasterFailed, TaskID: m.TaskID, DLLFile: reason}
		if err := WriteMessage(conn, msg); err != nil {
			log.Error().Err(err).Msg("failed to write type-8 message")
		}
	}
	m.cleanup(log)
}

// cleanup removes every filesystem artifact the job owns (§4.6 step 7):
// input_dir, the artifact, each completed mapper's result directory, each
// completed reducer's result file, and finally job_dir itself.
func (m *Master) cleanup(log zerolog.Logger) {
	_ = m.Storage.RemoveDirAll(m.InputDir)
	_ = m.Storage.RemoveFile(m.ArtifactPath)
	for _, mp := range m.mappers {
		if mp.Status == StatusCompleted {
			_ = m.Storage.RemoveDirAll(mp.ResultRef)
		}
	}
	for _, r := range m.reducers {
		if r.Status == StatusCompleted {
			_ = m.Storage.RemoveFile(r.ResultRef)
		}
	}
	_ = m.Storage.RemoveDirAll(m.JobDir)
	log.Info().Msg("job cleanup complete")
}
