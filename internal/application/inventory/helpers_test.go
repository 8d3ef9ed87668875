package inventory

import "time"

var testTime = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
