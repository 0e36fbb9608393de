package catalog

// Whitelists handed to the recognizer.
const (
	TimestampWhitelist   = "0123456789:/ APM"
	DecimalWhitelist     = "0123456789.-"
	IntegerWhitelist     = "0123456789"
	CaptionTimeWhitelist = "0123456789:/ "
)

// Default returns the calibration for SFCaspar_DetailView.gif.
func Default() *Catalog {
	c, err := New(Timestamp,
		Region{ID: Timestamp, Rect: Rect{530, 57, 897, 90}, Kind: KindText, Whitelist: TimestampWhitelist},
		Region{ID: AnnualRainfall, Rect: Rect{140, 650, 270, 700}, Kind: KindDecimal, Whitelist: DecimalWhitelist},
		Region{ID: BottleCount, Rect: Rect{40, 400, 140, 450}, Kind: KindDecimal, Whitelist: DecimalWhitelist},
		Region{ID: DailyRainfall, Rect: Rect{140, 610, 270, 650}, Kind: KindDecimal, Whitelist: DecimalWhitelist},
		Region{ID: GraphImage, Rect: Rect{270, 443, 1077, 784}, Kind: KindImage},
		Region{ID: Stage, Rect: Rect{10, 190, 160, 230}, Kind: KindDecimal, Whitelist: DecimalWhitelist},
		Region{ID: Temperature, Rect: Rect{245, 411, 370, 452}, Kind: KindDecimal, Whitelist: DecimalWhitelist},
		Region{ID: Turbidity, Rect: Rect{40, 270, 140, 307}, Kind: KindInteger, Whitelist: IntegerWhitelist},
		Region{ID: WeirImage, Rect: Rect{380, 124, 985, 409}, Kind: KindImage},
		Region{ID: WeirImageTimestamp, Rect: Rect{379, 393, 665, 409}, Kind: KindCaptionTime, Whitelist: CaptionTimeWhitelist},
	)
	if err != nil {
		panic("catalog: default calibration invalid: " + err.Error())
	}
	return c
}
