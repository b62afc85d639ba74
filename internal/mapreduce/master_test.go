package mapreduce

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServerForMaster plays the Server's half of the type-7/type-6
// handshake the Master blocks on in §4.6 step 6.
func fakeServerForMaster(t *testing.T) (addr string, received chan ProtocolMessage, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	received = make(chan ProtocolMessage, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			msg, err := ReadMessage(conn)
			if err == nil {
				received <- msg
				_ = WriteMessage(conn, ProtocolMessage{MessageType: MsgCleanup})
			}
			conn.Close()
		}
	}()

	return ln.Addr().String(), received, func() { ln.Close() }
}

func TestMasterRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	jobDir := filepath.Join(dir, "job")
	inputDir := filepath.Join(jobDir, "rawinput")
	require.NoError(t, s.CreateDir(jobDir))
	require.NoError(t, s.CreateDir(inputDir))
	require.NoError(t, s.WriteAll(filepath.Join(inputDir, "0"), []byte("a a b")))
	require.NoError(t, s.WriteAll(filepath.Join(inputDir, "1"), []byte("b c c")))

	artifact := filepath.Join(jobDir, "user_mapreduce.so")
	require.NoError(t, s.CreateFile(artifact))
	loader := newFakeLoader().withMapper(artifact, wordCountMapper).withReducer(artifact, sumReducer)

	addr, received, stop := fakeServerForMaster(t)
	defer stop()

	pool := NewPool(2, nil, nil)
	defer pool.Shutdown()

	m := &Master{
		TaskID:       1,
		TraceID:      "trace-1",
		JobDir:       jobDir,
		InputDir:     inputDir,
		ArtifactPath: artifact,
		ReducerNum:   2,
		Storage:      s,
		WorkerPool:   pool,
		Loader:       loader,
		ServerAddr:   addr,
		Logger:       NewLogger("test"),
	}
	m.Run()

	msg := <-received
	require.Equal(t, MsgMasterCompleted, msg.MessageType)
	require.Equal(t, uint32(1), msg.TaskID)
	require.NotEmpty(t, msg.DataFile)

	require.False(t, s.Exists(jobDir), "cleanup must remove job_dir")
}

func TestMasterRunAllMappersFail(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(filepath.Join(dir, "hdfs_root"))

	jobDir := filepath.Join(dir, "job")
	inputDir := filepath.Join(jobDir, "rawinput")
	require.NoError(t, s.CreateDir(jobDir))
	require.NoError(t, s.CreateDir(inputDir))
	require.NoError(t, s.WriteAll(filepath.Join(inputDir, "0"), []byte("x")))

	artifact := filepath.Join(jobDir, "user_mapreduce.so")
	require.NoError(t, s.CreateFile(artifact))
	loader := newFakeLoader() // no Mapper registered: every mapper errors

	addr, received, stop := fakeServerForMaster(t)
	defer stop()

	pool := NewPool(1, nil, nil)
	defer pool.Shutdown()

	m := &Master{
		TaskID:       2,
		JobDir:       jobDir,
		InputDir:     inputDir,
		ArtifactPath: artifact,
		ReducerNum:   1,
		Storage:      s,
		WorkerPool:   pool,
		Loader:       loader,
		ServerAddr:   addr,
		Logger:       NewLogger("test"),
	}
	m.Run()

	msg := <-received
	require.Equal(t, MsgMasterFailed, msg.MessageType)
	require.NotEmpty(t, msg.DLLFile)
}
