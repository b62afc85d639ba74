// Package mrclient implements the client side of the coordinator's wire
// protocol: apply for a job, stage the input and artifact, wait for the
// result, and copy it out locally.
package mrclient

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"mrcoordinator/internal/mapreduce"
)

// Client drives a single job end to end, mirroring the parameter list of
// the original Rust client.
type Client struct {
	InputFile    string
	ArtifactPath string
	ServerAddr   string
	OutputDir    string
	MapperNum    int
	ReducerNum   int

	Storage *mapreduce.Storage
	Loader  mapreduce.Loader
	Logger  zerolog.Logger
}

// Execute runs the client-side protocol flow (§6, §7): apply, stage,
// wait for completion, copy results out, and acknowledge cleanup. On a
// job failure it returns an error whose text is the type-5 reply's
// dll_file field, prefixed with "mrclient: job failed: ".
func (c *Client) Execute() error {
	if err := c.testArtifactLoadable(); err != nil {
		return err
	}

	taskID, stagingDir, artifactStagingPath, err := c.apply()
	if err != nil {
		return fmt.Errorf("mrclient: apply: %w", err)
	}
	c.Logger.Info().Uint32("task_id", taskID).Msg("job allocated")

	if err := c.Storage.Copy(c.ArtifactPath, artifactStagingPath); err != nil {
		return fmt.Errorf("mrclient: stage artifact: %w", err)
	}
	if err := mapreduce.BlockFile(c.Storage, c.InputFile, stagingDir, c.MapperNum); err != nil {
		return fmt.Errorf("mrclient: stage input: %w", err)
	}

	resultPaths, failErr, err := c.prepared(taskID)
	if err != nil {
		return fmt.Errorf("mrclient: prepared: %w", err)
	}
	if failErr != "" {
		return fmt.Errorf("mrclient: job failed: %s", failErr)
	}
	c.Logger.Info().Uint32("task_id", taskID).Int("results", len(resultPaths)).Msg("job finished")

	for _, p := range resultPaths {
		dest := mapreduce.Join(c.OutputDir, mapreduce.FilenameOf(p))
		if err := c.Storage.Copy(p, dest); err != nil {
			return fmt.Errorf("mrclient: copy result %s: %w", p, err)
		}
	}

	if err := c.copied(taskID); err != nil {
		return fmt.Errorf("mrclient: copied: %w", err)
	}
	return nil
}

// testArtifactLoadable validates both exported symbols resolve before the
// client contacts the server at all: failing fast on a bad artifact
// instead of burning a job slot.
func (c *Client) testArtifactLoadable() error {
	if _, err := c.Loader.LoadMapper(c.ArtifactPath); err != nil {
		return fmt.Errorf("mrclient: artifact missing Mapper: %w", err)
	}
	if _, err := c.Loader.LoadReducer(c.ArtifactPath); err != nil {
		return fmt.Errorf("mrclient: artifact missing Reducer: %w", err)
	}
	return nil
}

// apply sends a type-1 message on a fresh connection and reads the type-4
// reply on the same connection.
func (c *Client) apply() (taskID uint32, stagingDir, artifactStagingPath string, err error) {
	conn, err := net.Dial("tcp", c.ServerAddr)
	if err != nil {
		return 0, "", "", err
	}
	defer conn.Close()

	req := mapreduce.ProtocolMessage{
		MessageType: mapreduce.MsgApply,
		MapperNum:   uint32(c.MapperNum),
		ReducerNum:  uint32(c.ReducerNum),
	}
	if err := mapreduce.WriteMessage(conn, req); err != nil {
		return 0, "", "", err
	}
	reply, err := mapreduce.ReadMessage(conn)
	if err != nil {
		return 0, "", "", err
	}
	if reply.MessageType != mapreduce.MsgAllocated {
		return 0, "", "", fmt.Errorf("expected type-%d allocated, got type-%d", mapreduce.MsgAllocated, reply.MessageType)
	}
	return reply.TaskID, reply.DataFile, reply.DLLFile, nil
}

// prepared sends a type-2 message on a fresh connection and blocks on that
// same connection for the eventual type-5 reply (§9's connection handoff:
// this connection is the one the Server will later answer).
func (c *Client) prepared(taskID uint32) (resultPaths []string, failErr string, err error) {
	conn, err := net.Dial("tcp", c.ServerAddr)
	if err != nil {
		return nil, "", err
	}
	defer conn.Close()

	req := mapreduce.ProtocolMessage{MessageType: mapreduce.MsgPrepared, TaskID: taskID}
	if err := mapreduce.WriteMessage(conn, req); err != nil {
		return nil, "", err
	}

	reply, err := mapreduce.ReadMessage(conn)
	if err != nil {
		return nil, "", err
	}
	if reply.MessageType != mapreduce.MsgFinished {
		return nil, "", fmt.Errorf("expected type-%d finished, got type-%d", mapreduce.MsgFinished, reply.MessageType)
	}
	if reply.DataFile == "" {
		return nil, reply.DLLFile, nil
	}
	return strings.Split(reply.DataFile, "|"), "", nil
}

// copied sends the closing type-3 message on a fresh connection. There is
// no reply to wait for.
func (c *Client) copied(taskID uint32) error {
	conn, err := net.Dial("tcp", c.ServerAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return mapreduce.WriteMessage(conn, mapreduce.ProtocolMessage{MessageType: mapreduce.MsgCopied, TaskID: taskID})
}
