// Package mqtt connects Gray Logic Stage to the show control bus.
//
// The show clock evaluates timeline keyframes and publishes absolute-state
// events; this service consumes them and publishes the resulting node state.
//
//	Show clock -> graystage/timeline/{object,transform} -> Stage
//	Stage -> graystage/stage/node/{name}/state (retained) -> consoles
//
// A Last Will on graystage/system/status marks the service offline if it
// dies. Sessions are clean: events are absolute state, so the next frame
// after a reconnect restores the stage.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTimeline(), 1, dispatcher.HandleMessage)
package mqtt
