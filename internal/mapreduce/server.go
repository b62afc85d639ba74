package mapreduce

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// stagingRoot is the distributed backend's staging area: scheme plus an
// absolute path, per §6's documented "hdfs:///DS2023" convention.
const stagingRoot = DistributedPrefix + "/DS2023"

// artifactFilename is the reserved name for the user-supplied plugin inside
// both the staging dir and a job's local directory.
const artifactFilename = "user_mapreduce.so"

// Server is the single TCP listener described in §4.7: one accept/dispatch
// goroutine, owning the job table and the two worker pools.
type Server struct {
	Listener   net.Listener
	Storage    *Storage
	WorkerPool *Pool
	MasterPool *Pool
	Loader     Loader
	Logger     zerolog.Logger
	Metrics    *Metrics

	// SelfAddr is the address Masters dial back to for type-7/type-8
	// (§4.6 step 6): the Server's own listen address.
	SelfAddr string

	// JobRoot is the local filesystem directory under which job_dir
	// ("<JobRoot>/<task_id>/") is created. §6's layout names "./<task_id>/",
	// so JobRoot defaults to "." to match that exactly; tests override it
	// to keep job directories inside a temp dir.
	JobRoot string

	table     *jobTable
	taskIDCtr uint32
}

// NewServer wires a Server around an already-bound listener.
func NewServer(listener net.Listener, storage *Storage, workerPool, masterPool *Pool, loader Loader, logger zerolog.Logger, metrics *Metrics) *Server {
	return &Server{
		Listener:   listener,
		Storage:    storage,
		WorkerPool: workerPool,
		MasterPool: masterPool,
		Loader:     loader,
		Logger:     logger,
		Metrics:    metrics,
		SelfAddr:   listener.Addr().String(),
		JobRoot:    ".",
		table:      newJobTable(),
	}
}

// Run is the single accept/dispatch loop (§4.7, §5: "The Server runs one
// accept/dispatch goroutine"). It returns only when Accept fails, which
// happens when the listener is closed.
func (s *Server) Run() error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return err
		}
		s.handleConnection(conn)
	}
}

// handleConnection reads one message off conn and dispatches it. The
// connection is closed afterward unless the handler retains it to answer a
// later protocol step (§9's cross-actor connection handoff).
func (s *Server) handleConnection(conn net.Conn) {
	msg, err := ReadMessage(conn)
	if err != nil {
		s.Logger.Error().Err(err).Msg("failed to read protocol message")
		conn.Close()
		return
	}

	keep := false
	switch msg.MessageType {
	case MsgApply:
		s.handleApply(conn, msg)
	case MsgPrepared:
		keep = s.handlePrepared(conn, msg)
	case MsgCopied:
		s.handleCopied(conn, msg)
	case MsgMasterCompleted:
		keep = s.handleMasterCompleted(conn, msg)
	case MsgMasterFailed:
		s.handleMasterFailed(conn, msg)
	default:
		s.Logger.Error().Uint8("message_type", msg.MessageType).Msg("unknown message type, dropping")
	}

	if !keep {
		conn.Close()
	}
}

// handleApply processes a type-1 message: allocate a task_id, create
// staging_dir and job_dir, insert a Job, and reply with type-4.
func (s *Server) handleApply(conn net.Conn, msg ProtocolMessage) {
	taskID := atomic.AddUint32(&s.taskIDCtr, 1)
	traceID := uuid.NewString()

	stagingDir := Join(stagingRoot, fmt.Sprintf("%d", taskID))
	jobDir := Join(s.JobRoot, fmt.Sprintf("%d", taskID))
	inputDir := Join(jobDir, "rawinput")
	artifactPath := Join(jobDir, artifactFilename)

	_ = s.Storage.RemoveDirAll(stagingDir)
	_ = s.Storage.RemoveDirAll(jobDir)
	if err := s.Storage.CreateDir(stagingDir); err != nil {
		s.Logger.Error().Err(err).Uint32("task_id", taskID).Msg("failed to create staging dir")
		return
	}
	if err := s.Storage.CreateDir(jobDir); err != nil {
		s.Logger.Error().Err(err).Uint32("task_id", taskID).Msg("failed to create job dir")
		return
	}
	if err := s.Storage.CreateDir(inputDir); err != nil {
		s.Logger.Error().Err(err).Uint32("task_id", taskID).Msg("failed to create input dir")
		return
	}

	job := &Job{
		TaskID:       taskID,
		TraceID:      traceID,
		MapperNum:    msg.MapperNum,
		ReducerNum:   msg.ReducerNum,
		StagingDir:   stagingDir,
		JobDir:       jobDir,
		InputDir:     inputDir,
		ArtifactPath: artifactPath,
		Status:       StatusWaiting,
	}
	s.table.insert(job)
	if s.Metrics != nil {
		s.Metrics.JobsAccepted.Inc()
	}
	s.Logger.Info().Uint32("task_id", taskID).Str("trace_id", traceID).Msg("job allocated")

	reply := ProtocolMessage{
		MessageType: MsgAllocated,
		TaskID:      taskID,
		DataFile:    stagingDir,
		DLLFile:     Join(stagingDir, artifactFilename),
	}
	if err := WriteMessage(conn, reply); err != nil {
		s.Logger.Error().Err(err).Uint32("task_id", taskID).Msg("failed to reply type-4")
	}
}

// handlePrepared processes a type-2 message: stage files into the job's
// local dirs and submit a Master. Returns true: the connection is the
// Client's future type-5 reply channel and must stay open.
func (s *Server) handlePrepared(conn net.Conn, msg ProtocolMessage) bool {
	job, ok := s.table.get(msg.TaskID)
	if !ok {
		s.Logger.Error().Uint32("task_id", msg.TaskID).Msg("type-2 for unknown task_id, dropping")
		return false
	}
	job.pendingConn = conn
	job.pendingRole = connRoleClient

	children, err := s.Storage.ReadDir(job.StagingDir)
	if err != nil {
		s.Logger.Error().Err(err).Uint32("task_id", job.TaskID).Msg("failed to list staging dir")
		return true
	}
	for _, child := range children {
		dest := Join(job.InputDir, FilenameOf(child))
		if ExtensionOf(child) == "so" {
			dest = job.ArtifactPath
		}
		if err := s.Storage.Copy(child, dest); err != nil {
			s.Logger.Error().Err(err).Str("file", child).Msg("failed to stage file into job dir")
			return true
		}
	}

	job.Status = StatusExecuting
	s.Logger.Info().Uint32("task_id", job.TaskID).Msg("job prepared, submitting master")

	master := &Master{
		TaskID:       job.TaskID,
		TraceID:      job.TraceID,
		JobDir:       job.JobDir,
		InputDir:     job.InputDir,
		ArtifactPath: job.ArtifactPath,
		ReducerNum:   int(job.ReducerNum),
		Storage:      s.Storage,
		WorkerPool:   s.WorkerPool,
		Loader:       s.Loader,
		ServerAddr:   s.SelfAddr,
		Logger:       s.Logger,
	}
	s.MasterPool.Submit(master.Run)
	return true
}

// handleCopied processes a type-3 message: signal the waiting Master via
// type-6 and tear down staging.
func (s *Server) handleCopied(conn net.Conn, msg ProtocolMessage) {
	job, ok := s.table.get(msg.TaskID)
	if !ok {
		s.Logger.Error().Uint32("task_id", msg.TaskID).Msg("type-3 for unknown task_id, dropping")
		return
	}
	if job.pendingRole == connRoleMaster && job.pendingConn != nil {
		if err := WriteMessage(job.pendingConn, ProtocolMessage{MessageType: MsgCleanup}); err != nil {
			s.Logger.Error().Err(err).Uint32("task_id", job.TaskID).Msg("failed to signal master cleanup")
		}
		job.pendingConn.Close()
	}
	_ = s.Storage.RemoveDirAll(job.StagingDir)
	s.table.remove(job.TaskID)
	s.Logger.Info().Uint32("task_id", job.TaskID).Msg("job torn down")
}

// handleMasterCompleted processes a type-7 message: stage the Master's
// local results back out and reply type-5 to the Client. Returns true: this
// connection is now the Master's future type-6 channel and must stay open.
func (s *Server) handleMasterCompleted(conn net.Conn, msg ProtocolMessage) bool {
	job, ok := s.table.get(msg.TaskID)
	if !ok {
		s.Logger.Error().Uint32("task_id", msg.TaskID).Msg("type-7 for unknown task_id, dropping")
		return false
	}

	var localPaths []string
	if msg.DataFile != "" {
		localPaths = strings.Split(msg.DataFile, "|")
	}
	var stagedPaths []string
	for _, p := range localPaths {
		dest := Join(job.StagingDir, FilenameOf(p))
		if err := s.Storage.Copy(p, dest); err != nil {
			s.Logger.Error().Err(err).Str("file", p).Msg("failed to stage result file")
			continue
		}
		stagedPaths = append(stagedPaths, dest)
	}
	job.ResultPaths = stagedPaths
	job.Status = StatusCompleted

	if job.pendingRole == connRoleClient && job.pendingConn != nil {
		reply := ProtocolMessage{MessageType: MsgFinished, TaskID: job.TaskID, DataFile: strings.Join(stagedPaths, "|")}
		if err := WriteMessage(job.pendingConn, reply); err != nil {
			s.Logger.Error().Err(err).Uint32("task_id", job.TaskID).Msg("failed to reply type-5")
		}
		job.pendingConn.Close()
	}

	job.pendingConn = conn
	job.pendingRole = connRoleMaster
	if s.Metrics != nil {
		s.Metrics.JobsCompleted.Inc()
	}
	s.Logger.Info().Uint32("task_id", job.TaskID).Msg("master reported completion")
	return true
}

// handleMasterFailed processes a type-8 message: reply type-5 with an
// empty data_file and the error text, then tear everything down.
func (s *Server) handleMasterFailed(conn net.Conn, msg ProtocolMessage) {
	job, ok := s.table.get(msg.TaskID)
	if !ok {
		s.Logger.Error().Uint32("task_id", msg.TaskID).Msg("type-8 for unknown task_id, dropping")
		return
	}
	job.Status = StatusError

	if job.pendingRole == connRoleClient && job.pendingConn != nil {
		reply := ProtocolMessage{MessageType: MsgFinished, TaskID: job.TaskID, DataFile: "", DLLFile: msg.DLLFile}
		if err := WriteMessage(job.pendingConn, reply); err != nil {
			s.Logger.Error().Err(err).Uint32("task_id", job.TaskID).Msg("failed to reply type-5 for failure")
		}
		job.pendingConn.Close()
	}

	_ = s.Storage.RemoveDirAll(job.JobDir)
	_ = s.Storage.RemoveDirAll(job.StagingDir)
	s.table.remove(job.TaskID)
	if s.Metrics != nil {
		s.Metrics.JobsFailed.Inc()
	}
	s.Logger.Error().Uint32("task_id", job.TaskID).Str("reason", msg.DLLFile).Msg("job failed")
}
