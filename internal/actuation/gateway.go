package actuation

import (
	"context"
	"fmt"
)

// Device は操作対象の設備です
type Device string

const (
	DeviceCode  Device = "code"
	DeviceDoor  Device = "door"
	DeviceLight Device = "light"
	DeviceHVAC  Device = "hvac"
)

// DoorCommand はドアへの指示です
type DoorCommand string

const (
	DoorLock   DoorCommand = "LOCK"
	DoorUnlock DoorCommand = "UNLOCK"
)

// PowerCommand は照明・空調への指示です
type PowerCommand string

const (
	PowerOn  PowerCommand = "ON"
	PowerOff PowerCommand = "OFF"
)

// Gateway は部屋の設備へ一方向の指示を送るインターフェースです
// 配信は at-most-once で、受信確認は待ちません
type Gateway interface {
	PublishRoomCode(ctx context.Context, roomID int64, code string) error
	PublishDoor(ctx context.Context, roomID int64, cmd DoorCommand) error
	PublishLight(ctx context.Context, roomID int64, cmd PowerCommand) error
	PublishHVAC(ctx context.Context, roomID int64, cmd PowerCommand) error
}

// RoutingKey は部屋と設備から配信先のキーを組み立てます
func RoutingKey(roomID int64, device Device) string {
	return fmt.Sprintf("room.%d.%s", roomID, device)
}
