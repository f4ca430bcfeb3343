package actuation

import (
	"context"
	"log"

	"github.com/uma-arai/sbcntr-roombooking/internal/metrics"
)

// Dispatcher は状態遷移に伴う一連の指示を Gateway に送ります
// 送信の失敗はログに出力して握りつぶし、呼び出し元には返しません
type Dispatcher struct {
	gateway Gateway
}

// NewDispatcher は新しい Dispatcher を作成します
func NewDispatcher(gateway Gateway) *Dispatcher {
	return &Dispatcher{gateway: gateway}
}

// OpenRoom はチェックイン時にドアを解錠し、照明と空調を入れます
func (d *Dispatcher) OpenRoom(ctx context.Context, roomID int64) {
	d.report(roomID, DeviceDoor, d.gateway.PublishDoor(ctx, roomID, DoorUnlock))
	d.report(roomID, DeviceLight, d.gateway.PublishLight(ctx, roomID, PowerOn))
	d.report(roomID, DeviceHVAC, d.gateway.PublishHVAC(ctx, roomID, PowerOn))
}

// CloseRoom は利用終了時にドアを施錠し、照明と空調を切ります
func (d *Dispatcher) CloseRoom(ctx context.Context, roomID int64) {
	d.report(roomID, DeviceDoor, d.gateway.PublishDoor(ctx, roomID, DoorLock))
	d.report(roomID, DeviceLight, d.gateway.PublishLight(ctx, roomID, PowerOff))
	d.report(roomID, DeviceHVAC, d.gateway.PublishHVAC(ctx, roomID, PowerOff))
}

// AnnounceCode は部屋の表示端末に確認コードを送ります
func (d *Dispatcher) AnnounceCode(ctx context.Context, roomID int64, code string) {
	d.report(roomID, DeviceCode, d.gateway.PublishRoomCode(ctx, roomID, code))
}

func (d *Dispatcher) report(roomID int64, device Device, err error) {
	if err == nil {
		return
	}
	metrics.IncActuationFailed(string(device))
	log.Printf("Failed to publish %s command for room %d: %v", device, roomID, err)
}
