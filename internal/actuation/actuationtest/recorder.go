// Package actuationtest は設備への指示を記録するテスト用の Gateway を提供します
package actuationtest

import (
	"context"
	"sync"

	"github.com/uma-arai/sbcntr-roombooking/internal/actuation"
)

// Command は Recorder が記録した1件の指示です
type Command struct {
	RoomID  int64
	Device  actuation.Device
	Payload string
}

// Recorder は送られた指示を記録する actuation.Gateway です
// Fail に設定した設備への指示はエラーを返します
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	Fail     map[actuation.Device]error
}

func (r *Recorder) PublishRoomCode(_ context.Context, roomID int64, code string) error {
	return r.record(roomID, actuation.DeviceCode, code)
}

func (r *Recorder) PublishDoor(_ context.Context, roomID int64, cmd actuation.DoorCommand) error {
	return r.record(roomID, actuation.DeviceDoor, string(cmd))
}

func (r *Recorder) PublishLight(_ context.Context, roomID int64, cmd actuation.PowerCommand) error {
	return r.record(roomID, actuation.DeviceLight, string(cmd))
}

func (r *Recorder) PublishHVAC(_ context.Context, roomID int64, cmd actuation.PowerCommand) error {
	return r.record(roomID, actuation.DeviceHVAC, string(cmd))
}

// Commands は記録済みの指示のコピーを返します
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Count は条件に一致する指示の件数を返します
func (r *Recorder) Count(roomID int64, device actuation.Device, payload string) int {
	n := 0
	for _, c := range r.Commands() {
		if c.RoomID == roomID && c.Device == device && c.Payload == payload {
			n++
		}
	}
	return n
}

// Reset は記録を消去します
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}

func (r *Recorder) record(roomID int64, device actuation.Device, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[device]; err != nil {
		return err
	}
	r.commands = append(r.commands, Command{RoomID: roomID, Device: device, Payload: payload})
	return nil
}
