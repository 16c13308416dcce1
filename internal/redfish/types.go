package redfish

// Status is the common Redfish health/state pair.
// Health is "OK", "Warning", "Critical" or absent (null).
type Status struct {
	Health string `json:"Health"`
	State  string `json:"State"`
}

// Thermal is /redfish/v1/Chassis/{id}/Thermal.
type Thermal struct {
	Temperatures []Temperature `json:"Temperatures"`
	Fans         []FanUnit     `json:"Fans"`
}

// Temperature is one element of Thermal.Temperatures.
type Temperature struct {
	Name                      string   `json:"Name"`
	ReadingCelsius            *float64 `json:"ReadingCelsius"`
	UpperThresholdCritical    *float64 `json:"UpperThresholdCritical"`
	UpperThresholdNonCritical *float64 `json:"UpperThresholdNonCritical"`
	Status                    Status   `json:"Status"`
}

// FanUnit is one element of Thermal.Fans.
type FanUnit struct {
	Name         string   `json:"Name"`
	Reading      *float64 `json:"Reading"`
	ReadingUnits string   `json:"ReadingUnits"`
	Status       Status   `json:"Status"`
}

// Power is /redfish/v1/Chassis/{id}/Power.
type Power struct {
	PowerControl  []PowerControl  `json:"PowerControl"`
	PowerSupplies []PowerSupply   `json:"PowerSupplies"`
	Voltages      []VoltageProbe  `json:"Voltages"`
}

// PowerControl carries the chassis-level draw.
type PowerControl struct {
	PowerConsumedWatts *float64 `json:"PowerConsumedWatts"`
	PowerMetrics       struct {
		MaxConsumedWatts *float64 `json:"MaxConsumedWatts"`
	} `json:"PowerMetrics"`
}

// PowerSupply is one element of Power.PowerSupplies.
type PowerSupply struct {
	Name                 string   `json:"Name"`
	LineInputVoltage     *float64 `json:"LineInputVoltage"`
	LastPowerOutputWatts *float64 `json:"LastPowerOutputWatts"`
	PowerCapacityWatts   *float64 `json:"PowerCapacityWatts"`
	Status               Status   `json:"Status"`
}

// VoltageProbe is one element of Power.Voltages.
type VoltageProbe struct {
	Name         string   `json:"Name"`
	ReadingVolts *float64 `json:"ReadingVolts"`
	Status       Status   `json:"Status"`
}

// ComputerSystem is /redfish/v1/Systems/{id}.
type ComputerSystem struct {
	HostName    string `json:"HostName"`
	Model       string `json:"Model"`
	SKU         string `json:"SKU"` // the service tag on Dell hardware
	BiosVersion string `json:"BiosVersion"`
	PowerState  string `json:"PowerState"`
	Status      Status `json:"Status"`

	MemorySummary struct {
		TotalSystemMemoryGiB *float64 `json:"TotalSystemMemoryGiB"`
		Status               Status   `json:"Status"`
	} `json:"MemorySummary"`

	ProcessorSummary struct {
		Count  int    `json:"Count"`
		Model  string `json:"Model"`
		Status Status `json:"Status"`
	} `json:"ProcessorSummary"`
}

// Chassis is /redfish/v1/Chassis/{id}. Only the intrusion block is consumed.
type Chassis struct {
	PhysicalSecurity struct {
		IntrusionSensor string `json:"IntrusionSensor"`
	} `json:"PhysicalSecurity"`
	Status Status `json:"Status"`
}

// Manager is /redfish/v1/Managers/{id}.
type Manager struct {
	FirmwareVersion string `json:"FirmwareVersion"`
	Status          Status `json:"Status"`
}
