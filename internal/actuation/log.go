package actuation

import (
	"context"
	"log"
)

// LogGateway は指示をログに出力するだけの Gateway です
// ローカル環境などブローカーがない場合に利用します
type LogGateway struct{}

func (LogGateway) PublishRoomCode(_ context.Context, roomID int64, code string) error {
	log.Printf("[actuation] %s <- %s", RoutingKey(roomID, DeviceCode), code)
	return nil
}

func (LogGateway) PublishDoor(_ context.Context, roomID int64, cmd DoorCommand) error {
	log.Printf("[actuation] %s <- %s", RoutingKey(roomID, DeviceDoor), cmd)
	return nil
}

func (LogGateway) PublishLight(_ context.Context, roomID int64, cmd PowerCommand) error {
	log.Printf("[actuation] %s <- %s", RoutingKey(roomID, DeviceLight), cmd)
	return nil
}

func (LogGateway) PublishHVAC(_ context.Context, roomID int64, cmd PowerCommand) error {
	log.Printf("[actuation] %s <- %s", RoutingKey(roomID, DeviceHVAC), cmd)
	return nil
}
