package tracing

import (
	"context"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Span は X-Ray サブセグメントの薄いラッパーです
// 親セグメントがない場合(トレース無効時やテスト)は何もしません
type Span struct {
	seg    *xray.Segment
	closed bool
}

// Begin は ctx に親セグメントがあればサブセグメントを開始します
func Begin(ctx context.Context, name string) (context.Context, *Span) {
	if xray.GetSegment(ctx) == nil {
		return ctx, &Span{}
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	return ctx, &Span{seg: seg}
}

// End はサブセグメントを閉じます。2回目以降の呼び出しは無視されます
func (s *Span) End(err error) {
	if s == nil || s.seg == nil || s.closed {
		return
	}
	s.closed = true
	s.seg.Close(err)
}

// AddMetadata はサブセグメントにメタデータを追加します
func (s *Span) AddMetadata(key string, value interface{}) {
	if s == nil || s.seg == nil {
		return
	}
	if err := s.seg.AddMetadata(key, value); err != nil {
		log.Printf("Failed to add %s metadata: %v", key, err)
	}
}
