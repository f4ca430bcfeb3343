package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
)

// MockSFNClient はテスト用の Step Functions クライアントです
type MockSFNClient struct {
	successInput *sfn.SendTaskSuccessInput
	failureInput *sfn.SendTaskFailureInput
	successError error
}

func (m *MockSFNClient) SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error) {
	m.successInput = params
	return &sfn.SendTaskSuccessOutput{}, m.successError
}

func (m *MockSFNClient) SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error) {
	m.failureInput = params
	return &sfn.SendTaskFailureOutput{}, nil
}

func TestTaskReporter_SendSuccess(t *testing.T) {
	roomID := int64(1)
	report := TickReport{
		StartedAt: base,
		Expired:   1,
		Events: []model.TransitionEvent{
			{BookingID: 7, RoomID: &roomID, From: model.BookingStatusReserved, To: model.BookingStatusNoShow, At: base},
		},
	}

	tests := []struct {
		name      string
		client    *MockSFNClient
		taskToken string
		wantErr   bool
		wantSent  bool
	}{
		{
			name:      "遷移イベントを出力として通知",
			client:    &MockSFNClient{},
			taskToken: "token",
			wantSent:  true,
		},
		{
			name:      "タスクトークンが空",
			client:    &MockSFNClient{},
			taskToken: "",
			wantErr:   true,
		},
		{
			name:      "通知に失敗",
			client:    &MockSFNClient{successError: errors.New("throttled")},
			taskToken: "token",
			wantErr:   true,
			wantSent:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := NewTaskReporter(tt.client, tt.taskToken)
			err := reporter.SendSuccess(context.Background(), report)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendSuccess() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (tt.client.successInput != nil) != tt.wantSent {
				t.Fatalf("SendTaskSuccess called = %v, want %v", tt.client.successInput != nil, tt.wantSent)
			}
			if !tt.wantSent || tt.wantErr {
				return
			}

			var output struct {
				Report TickReport `json:"report"`
			}
			if err := json.Unmarshal([]byte(aws.ToString(tt.client.successInput.Output)), &output); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if len(output.Report.Events) != 1 || output.Report.Events[0].To != model.BookingStatusNoShow {
				t.Errorf("output events = %+v", output.Report.Events)
			}
		})
	}
}

func TestTaskReporter_LocalSkipsNotification(t *testing.T) {
	reporter := NewTaskReporter(nil, "")
	if err := reporter.SendSuccess(context.Background(), TickReport{}); err != nil {
		t.Errorf("SendSuccess() error = %v", err)
	}
	if err := reporter.SendFailure(context.Background(), errors.New("boom")); err != nil {
		t.Errorf("SendFailure() error = %v", err)
	}
}

func TestReconcileBatchService_Run(t *testing.T) {
	// X-Rayのセグメントを設定
	ctx, seg := xray.BeginSegment(context.Background(), "TestReconcileBatchService_Run")
	defer seg.Close(nil)

	env := newSchedulerEnv(t, nil)
	b := env.put(1, base.Add(-time.Hour), base, model.BookingStatusCheckedIn)
	client := &MockSFNClient{}

	service := NewReconcileBatchService(env.scheduler, NewTaskReporter(client, "token"))
	if err := service.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := env.status(t, b.ID); got != model.BookingStatusCompleted {
		t.Errorf("status = %v, want %v", got, model.BookingStatusCompleted)
	}
	if client.successInput == nil || aws.ToString(client.successInput.TaskToken) != "token" {
		t.Errorf("SendTaskSuccess input = %+v", client.successInput)
	}
}
