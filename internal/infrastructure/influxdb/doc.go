// Package influxdb records stage playback telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//
//   - stage_events: one point per applied timeline event (kind, name,
//     resolver strategy, propagation tier, affected prop count, latency)
//   - stage_misses: one point per resolution miss (kind, name)
//
// Both carry a "show" tag so several productions can share a bucket.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Show.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteResolutionMiss("object", "stand_mic_01", 4, time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; asynchronous failures are reported through SetOnError.
package influxdb
