// Package camundatest provides an in-memory job client for worker tests.
package camundatest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// Gateway records the job commands sent through it.
type Gateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	Completed []*pb.CompleteJobRequest
	Failed    []*pb.FailJobRequest
	Thrown    []*pb.ThrowErrorRequest
	Created   []*pb.CreateProcessInstanceRequest

	// CreateErr is returned from CreateProcessInstance when set.
	CreateErr error
}

func (g *Gateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Completed = append(g.Completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *Gateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Failed = append(g.Failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *Gateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Thrown = append(g.Thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

func (g *Gateway) CreateProcessInstance(_ context.Context, in *pb.CreateProcessInstanceRequest, _ ...grpc.CallOption) (*pb.CreateProcessInstanceResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.Created = append(g.Created, in)
	return &pb.CreateProcessInstanceResponse{
		ProcessDefinitionKey: 2251799813685249,
		BpmnProcessId:        in.GetBpmnProcessId(),
		Version:              1,
		ProcessInstanceKey:   2251799813685250 + int64(len(g.Created)),
	}, nil
}

// CompletedVariables decodes the variables of the i-th completed job into out.
func (g *Gateway) CompletedVariables(i int, out interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Unmarshal([]byte(g.Completed[i].GetVariables()), out)
}

func noRetry(context.Context, error) bool { return false }

// JobClient implements worker.JobClient on top of a Gateway.
type JobClient struct {
	Gateway *Gateway
}

func NewJobClient() *JobClient {
	return &JobClient{Gateway: &Gateway{}}
}

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.Gateway, noRetry)
}

// NewCreateInstanceCommand lets the JobClient stand in for a process starter.
func (c *JobClient) NewCreateInstanceCommand() commands.CreateInstanceCommandStep1 {
	return commands.NewCreateInstanceCommand(c.Gateway, noRetry)
}

// Job builds an activated job carrying variables as JSON.
func Job(key int64, taskType string, variables interface{}) entities.Job {
	data, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                      key,
		Type:                     taskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "helpdesk-ticket",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_" + taskType,
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Variables:                string(data),
	}}
}

// RawJob builds an activated job with the given variables document.
func RawJob(key int64, taskType, variables string) entities.Job {
	job := Job(key, taskType, map[string]interface{}{})
	job.Variables = variables
	return job
}
