package room

// palette holds the presence colors handed out at join time. Assignment
// wraps by modulo, so colors repeat once a room outgrows the palette.
var palette = []string{
	"#e74c3c", // red
	"#3498db", // blue
	"#2ecc71", // green
	"#f39c12", // orange
	"#9b59b6", // purple
	"#1abc9c", // teal
	"#e67e22", // carrot
	"#34495e", // slate
}
