package device

import "time"

// manufacturerAVC is the vendor of every catalog device.
const manufacturerAVC = "AVC Technologies"

// candidatePool is the fixed set of devices a scan can discover, in
// discovery order. Accessed only through Candidates, which copies.
var candidatePool = []Device{
	{
		ID:             "avc-beryl-01",
		Name:           "AVC Beryl X1",
		Category:       CategoryAVCMask,
		Status:         StatusDisconnected,
		SignalStrength: 88,
		SensorAccuracy: 98,
		BatteryLevel:   Ptr(92),
		Bandwidth:      Bandwidth{Upload: 2, Download: 5, Used: 120, Limit: 1000},
		MACAddress:     "AV:C1:BE:RY:L1:01",
		Capabilities:   []string{"Speech Synthesis", "Muscle Sensing", "Airflow Analysis"},
		HealthStatus:   HealthExcellent,
	},
	{
		ID:             "avc-pro-02",
		Name:           "AVC Pro Mask",
		Category:       CategoryAVCPro,
		Status:         StatusDisconnected,
		SignalStrength: 76,
		SensorAccuracy: 99,
		BatteryLevel:   Ptr(65),
		Bandwidth:      Bandwidth{Upload: 3, Download: 8, Used: 450, Limit: 2000},
		MACAddress:     "AV:C1:PR:O2:M3:02",
		Capabilities:   []string{"Speech Synthesis", "Pro Audio", "Muscle Sensing", "Airflow Analysis"},
		HealthStatus:   HealthGood,
	},
	{
		ID:             "avc-audio-03",
		Name:           "AVC Audio Hub",
		Category:       CategorySpeaker,
		Status:         StatusDisconnected,
		SignalStrength: 92,
		SensorAccuracy: 100,
		BatteryLevel:   Ptr(100),
		Bandwidth:      Bandwidth{Upload: 5, Download: 12, Used: 800, Limit: 5000},
		MACAddress:     "AV:C1:AU:D1:O3:99",
		Capabilities:   []string{"Spatial Audio", "Echo Cancellation", "Multi-room Sync"},
		HealthStatus:   HealthExcellent,
	},
	{
		ID:             "avc-beryl-02",
		Name:           "AVC Beryl X2 (Beta)",
		Category:       CategoryAVCMask,
		Status:         StatusDisconnected,
		SignalStrength: 65,
		SensorAccuracy: 95,
		BatteryLevel:   Ptr(85),
		Bandwidth:      Bandwidth{Upload: 4, Download: 10, Used: 50, Limit: 1500},
		MACAddress:     "AV:C2:BE:RY:L2:02",
		Capabilities:   []string{"Ultra-Low Latency", "Neural Synthesis", "Muscle Sensing"},
		HealthStatus:   HealthExcellent,
	},
}

// Candidates returns a copy of the scan candidate pool. LastConnected is
// stamped with now, matching how a fresh scan presents its results.
func Candidates(now time.Time) []Device {
	out := make([]Device, len(candidatePool))
	for i := range candidatePool {
		d := candidatePool[i].DeepCopy()
		d.LastConnected = now
		out[i] = *d
	}
	return out
}

// DemoDevices returns the known device list used to pre-populate a fresh
// dashboard. Seeded devices start disconnected: only the simulator puts a
// device into the connected state, and it holds at most one.
func DemoDevices(now time.Time) []Device {
	return []Device{
		{
			ID:              "dev-001",
			Name:            "AVC Pro Mask v2",
			Category:        CategoryAVCPro,
			Status:          StatusDisconnected,
			SignalStrength:  92,
			SensorAccuracy:  98,
			BatteryLevel:    Ptr(78),
			Bandwidth:       Bandwidth{Upload: 0.5, Download: 1.2, Used: 45, Limit: 500},
			MACAddress:      "AA:BB:CC:DD:EE:01",
			IPAddress:       Ptr("192.168.1.101"),
			Manufacturer:    Ptr(manufacturerAVC),
			Model:           Ptr("AVC-PRO-02"),
			FirmwareVersion: Ptr("2.1.0"),
			Capabilities:    []string{"Real-time Audio", "Biometric Sync", "Noise Cancellation", "Neural Engine"},
			LastConnected:   now,
			HealthStatus:    HealthExcellent,
		},
		{
			ID:              "dev-005",
			Name:            "AVC Studio Speaker",
			Category:        CategorySpeaker,
			Status:          StatusDisconnected,
			SignalStrength:  85,
			SensorAccuracy:  94,
			Bandwidth:       Bandwidth{Upload: 2, Download: 8, Used: 512, Limit: 2000},
			MACAddress:      "AA:BB:CC:DD:EE:05",
			IPAddress:       Ptr("192.168.1.103"),
			Manufacturer:    Ptr(manufacturerAVC),
			Model:           Ptr("AVC-SPK-MINI"),
			FirmwareVersion: Ptr("1.2.4"),
			Capabilities:    []string{"Lossless Audio", "Multi-room Sync", "Voice Control"},
			LastConnected:   now,
			HealthStatus:    HealthGood,
		},
		{
			ID:              "dev-006",
			Name:            "AVC Lite Mask",
			Category:        CategoryAVCLite,
			Status:          StatusDisconnected,
			SignalStrength:  0,
			SensorAccuracy:  96,
			BatteryLevel:    Ptr(23),
			Bandwidth:       Bandwidth{Limit: 500},
			MACAddress:      "AA:BB:CC:DD:EE:06",
			IPAddress:       Ptr("192.168.1.105"),
			Manufacturer:    Ptr(manufacturerAVC),
			Model:           Ptr("AVC-LITE-01"),
			FirmwareVersion: Ptr("1.0.5"),
			Capabilities:    []string{"Audio Synthesis", "Basic Biometrics", "Sleep Mode"},
			LastConnected:   now.Add(-2 * time.Hour),
			HealthStatus:    HealthFair,
		},
	}
}
