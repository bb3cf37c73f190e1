package device

// Group is a named, static collection of devices plus its recomputed
// aggregate state. Per §3, membership is fixed at roster load and never
// mutated at runtime; only the aggregate state and pending flag change.
type Group struct {
	ID      GroupID
	Name    string
	Room    string
	Members []ID

	State   State
	Pending bool
}

// aggregate recomputes a group's logical state from its live member
// devices: on iff any member on; brightness/color_temp are the average of
// members that are on; rgb and fan speed are taken from the last on
// member in membership order.
func aggregate(members []*Device) State {
	var agg State
	onCount := 0
	var brightnessSum, colorTempSum int

	for _, m := range members {
		if m == nil || !m.State.On {
			continue
		}
		agg.On = true
		onCount++
		brightnessSum += m.State.Brightness
		colorTempSum += m.State.ColorTemp
		agg.RGB = m.State.RGB
		agg.FanSpeed = m.State.FanSpeed
	}
	if onCount > 0 {
		agg.Brightness = brightnessSum / onCount
		agg.ColorTemp = colorTempSum / onCount
	}
	return agg
}
