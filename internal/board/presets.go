package board

// Printed chessboard targets in common use. Square widths are in meters.

// OpenCV9x6Spec returns the 10x7 squares board shipped with the OpenCV samples.
func OpenCV9x6Spec() Spec {
	return Spec{
		Name:         "opencv-9x6",
		Corners:      Size{Rows: 6, Cols: 9},
		SquareWidth:  0.025,
		RefineWindow: Window{Width: 11, Height: 11},
	}
}

// A4Spec returns a 9x7 squares board printed on A4 paper with 25mm squares.
func A4Spec() Spec {
	return Spec{
		Name:         "a4-8x6",
		Corners:      Size{Rows: 6, Cols: 8},
		SquareWidth:  0.025,
		RefineWindow: Window{Width: 11, Height: 11},
	}
}

// A3Spec returns a 12x9 squares board printed on A3 paper with 30mm squares.
func A3Spec() Spec {
	return Spec{
		Name:         "a3-11x8",
		Corners:      Size{Rows: 8, Cols: 11},
		SquareWidth:  0.03,
		RefineWindow: Window{Width: 11, Height: 11},
	}
}
