package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/utils"
)

const maxFailureCause = 32768

// SFNClient は Step Functions のタスク結果通知に使う API です
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// TaskReporter はティックの結果を Step Functions に通知します
// client が nil の場合(ローカル環境)は通知をスキップします
type TaskReporter struct {
	client    SFNClient
	taskToken string
}

// NewTaskReporter は新しい TaskReporter を作成します
func NewTaskReporter(client SFNClient, taskToken string) *TaskReporter {
	return &TaskReporter{client: client, taskToken: taskToken}
}

// SendSuccess はタスク成功を通知し、遷移イベントを出力として返却します
func (r *TaskReporter) SendSuccess(ctx context.Context, report TickReport) error {
	if r.client == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}
	if r.taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	output, err := json.Marshal(map[string]any{
		"report": report,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal tick report: %w", err)
	}

	_, err = r.client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(r.taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with %d transition events", len(report.Events))
	return nil
}

// SendFailure はタスク失敗を通知します
func (r *TaskReporter) SendFailure(ctx context.Context, cause error) error {
	if r.client == nil {
		return nil
	}

	// Cause は最大 32768 文字
	msg := cause.Error()
	if len(msg) > maxFailureCause {
		msg = msg[:maxFailureCause]
	}

	_, err := r.client.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(r.taskToken),
		Error:     aws.String("Reconciliation failed"),
		Cause:     aws.String(msg),
	})
	if err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}

// ReconcileBatchService は Step Functions から起動される1回限りのティックです
type ReconcileBatchService struct {
	scheduler *ReconciliationService
	reporter  *TaskReporter
}

// NewReconcileBatchService は新しい ReconcileBatchService を作成します
func NewReconcileBatchService(scheduler *ReconciliationService, reporter *TaskReporter) *ReconcileBatchService {
	return &ReconcileBatchService{scheduler: scheduler, reporter: reporter}
}

// Run はティックを1回実行し、結果を通知します
func (s *ReconcileBatchService) Run(ctx context.Context) error {
	ctx, span := tracing.Begin(ctx, "ReconcileBatchService.Run")
	defer span.End(nil)

	report, err := s.scheduler.Tick(ctx)
	if err != nil {
		span.End(err)
		return utils.GetStackWithError(fmt.Errorf("failed to run reconciliation tick: %w", err))
	}

	if err := s.reporter.SendSuccess(ctx, report); err != nil {
		span.End(err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	span.AddMetadata("duration", report.Duration)
	log.Printf("Reconciliation batch process completed successfully. Duration: %s", report.Duration)
	return nil
}
