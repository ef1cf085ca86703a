package indicators

// Bollinger is a Bollinger Band reading: middle=SMA, bands offset by
// sigma standard deviations, per spec §4.5.
type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands computes the bands over the last period values with the
// given standard-deviation multiplier sigma.
func BollingerBands(values []float64, period int, sigma float64) Bollinger {
	mid := SMA(values, period)
	sd := StdDev(values, period)
	width := sd * sigma
	return Bollinger{Upper: mid + width, Middle: mid, Lower: mid - width}
}
