package codec

// field maps one normalized name to the wire aliases it may arrive under.
// Aliases are gjson paths; the first one present with a usable value wins.
type field struct {
	name    string
	aliases []string
}

// schema describes how one category's payload maps onto a Record.
type schema struct {
	value  field
	fields []field
	labels []field

	// lists are keys whose array value holds one item per device/interface.
	lists []string

	// derive fills in the primary value from auxiliary fields when absent.
	derive func(fields map[string]float64) (float64, bool)
}

var cpuSchema = schema{
	value: field{"usage", []string{"usage", "cpu_usage", "percent", "total_usage", "cpu_percent"}},
	fields: []field{
		{"cores", []string{"cores", "core_count", "cpu_count"}},
		{"frequency", []string{"frequency", "freq", "current_freq"}},
		{"temperature", []string{"temperature", "temp"}},
		{"load_1", []string{"load_1", "load1", "load_avg.0", "loadavg.0"}},
		{"load_5", []string{"load_5", "load5", "load_avg.1", "loadavg.1"}},
		{"load_15", []string{"load_15", "load15", "load_avg.2", "loadavg.2"}},
	},
}

var memorySchema = schema{
	value: field{"percent", []string{"percent", "usage", "used_percent", "memory_percent"}},
	fields: []field{
		{"total", []string{"total", "total_bytes"}},
		{"used", []string{"used", "used_bytes"}},
		{"available", []string{"available", "free", "available_bytes"}},
		{"swap_percent", []string{"swap_percent", "swap_usage", "swap.percent"}},
	},
	derive: usedOverTotal,
}

var diskSchema = schema{
	value: field{"percent", []string{"percent", "usage", "used_percent", "usage_percent"}},
	fields: []field{
		{"total", []string{"total", "total_bytes", "size"}},
		{"used", []string{"used", "used_bytes"}},
		{"free", []string{"free", "free_bytes", "available"}},
		{"read_speed", []string{"read_speed", "read_bytes_per_sec", "read_rate"}},
		{"write_speed", []string{"write_speed", "write_bytes_per_sec", "write_rate"}},
	},
	labels: []field{
		{"device", []string{"device", "name", "disk"}},
		{"mountpoint", []string{"mountpoint", "mount", "mount_point"}},
	},
	lists:  []string{"disks", "partitions", "devices"},
	derive: usedOverTotal,
}

var networkFields = []field{
	{"upload", []string{"upload_speed", "tx_rate", "bytes_sent_rate", "upload", "tx"}},
	{"bytes_recv", []string{"bytes_recv", "rx_bytes"}},
	{"bytes_sent", []string{"bytes_sent", "tx_bytes"}},
}

var networkSchema = schema{
	value:  field{"download", []string{"download_speed", "rx_rate", "bytes_recv_rate", "download", "rx"}},
	fields: networkFields,
	labels: []field{
		{"interface", []string{"interface", "name", "iface"}},
	},
	lists: []string{"interfaces", "networks", "nics"},
}

var ethernetSchema = schema{
	value: networkSchema.value,
	fields: append(append([]field{}, networkFields...),
		field{"link_speed", []string{"link_speed", "speed", "speed_mbps"}},
	),
	labels: networkSchema.labels,
	lists:  networkSchema.lists,
}

var wifiSchema = schema{
	value: networkSchema.value,
	fields: append(append([]field{}, networkFields...),
		field{"signal", []string{"signal_strength", "signal", "rssi"}},
		field{"link_speed", []string{"link_speed", "tx_bitrate", "speed"}},
	),
	labels: append(append([]field{}, networkSchema.labels...),
		field{"ssid", []string{"ssid", "network_name"}},
	),
	lists: networkSchema.lists,
}

// schemas is keyed by category. Minigraphs has no schema of its own; it is an
// aggregate of the others and is decoded by the multiplexer.
var schemas = map[Category]*schema{
	CategoryCPU:      &cpuSchema,
	CategoryMemory:   &memorySchema,
	CategoryDisk:     &diskSchema,
	CategoryNetwork:  &networkSchema,
	CategoryEthernet: &ethernetSchema,
	CategoryWifi:     &wifiSchema,
}

// usedOverTotal derives a percentage from used/total byte counts.
func usedOverTotal(fields map[string]float64) (float64, bool) {
	total, used := fields["total"], fields["used"]
	if total <= 0 {
		return 0, false
	}
	return used / total * 100, true
}
