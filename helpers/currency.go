package helpers

import "fmt"

// FormatWon formats a transaction amount as Korean Won currency
func FormatWon(amount int64) string {
	// Handle negative numbers
	negative := amount < 0
	if negative {
		amount = -amount
	}

	// Convert to string and add thousand separators
	str := fmt.Sprintf("%d", amount)
	length := len(str)

	if length <= 3 {
		if negative {
			return fmt.Sprintf("₩-%s", str)
		}
		return fmt.Sprintf("₩%s", str)
	}

	// Build the formatted string with commas as thousand separators
	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("₩-%s", result)
	}
	return fmt.Sprintf("₩%s", result)
}
