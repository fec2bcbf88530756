package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	receivedDesc = prometheus.NewDesc("camviewer_frames_received_total",
		"Events delivered by the subscription, by stream.", []string{"stream"}, nil)
	decodedDesc = prometheus.NewDesc("camviewer_frames_decoded_total",
		"Payloads decoded successfully, by stream.", []string{"stream"}, nil)
	decodeErrorsDesc = prometheus.NewDesc("camviewer_frame_decode_errors_total",
		"Payloads dropped because they failed to decode, by stream.", []string{"stream"}, nil)
	presentedDesc = prometheus.NewDesc("camviewer_frames_presented_total",
		"Frames handed to the display, by stream.", []string{"stream"}, nil)
	discardedDesc = prometheus.NewDesc("camviewer_frames_discarded_total",
		"Frames discarded because their stream was not the active view, by stream.", []string{"stream"}, nil)
	bytesDesc = prometheus.NewDesc("camviewer_payload_bytes_total",
		"Compressed payload bytes received, by stream.", []string{"stream"}, nil)
	upDesc = prometheus.NewDesc("camviewer_stream_up",
		"1 while the stream has a live subscription.", []string{"stream"}, nil)
)

// Describe implements prometheus.Collector.
func (t *Tracker) Describe(ch chan<- *prometheus.Desc) {
	ch <- receivedDesc
	ch <- decodedDesc
	ch <- decodeErrorsDesc
	ch <- presentedDesc
	ch <- discardedDesc
	ch <- bytesDesc
	ch <- upDesc
}

// Collect implements prometheus.Collector.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	for _, s := range t.Snapshot() {
		ch <- prometheus.MustNewConstMetric(receivedDesc, prometheus.CounterValue, float64(s.Received), s.Name)
		ch <- prometheus.MustNewConstMetric(decodedDesc, prometheus.CounterValue, float64(s.Decoded), s.Name)
		ch <- prometheus.MustNewConstMetric(decodeErrorsDesc, prometheus.CounterValue, float64(s.DecodeErrors), s.Name)
		ch <- prometheus.MustNewConstMetric(presentedDesc, prometheus.CounterValue, float64(s.Presented), s.Name)
		ch <- prometheus.MustNewConstMetric(discardedDesc, prometheus.CounterValue, float64(s.Discarded), s.Name)
		ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(s.Bytes), s.Name)
		up := 0.0
		if s.Up {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, up, s.Name)
	}
}
