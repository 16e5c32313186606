package config

var defaultMessages = map[string]Message{
	"not_identified":      {"%name%: Please identify with %authority% before using %nick%."},
	"error":               {"%name%: Something went wrong, please try again later."},
	"self_tip":            {"%name%: You can't tip yourself!"},
	"tip_too_small":       {"%from%: The minimum tip is %min_tip% %short_name%."},
	"tip_usage":           {"Usage: %prefix%tip <nickname> <amount>"},
	"no_funds":            {"%name%: Insufficient funds to tip %amount% %short_name%. Your balance is %balance% %short_name%, %short% %short_name% short."},
	"tipped":              {"%from% tipped %to% %amount% %short_name%!"},
	"deposit_address":     {"%name%: Your deposit address is %address%"},
	"balance":             {"%name%: Your balance is %balance% %short_name%."},
	"balance_unconfirmed": {"%name%: Your balance is %balance% %short_name% (+%unconfirmed% %short_name% unconfirmed)."},
	"invalid_address":     {"%name%: %address% is not a valid %full_name% address."},
	"withdraw_usage":      {"Usage: %prefix%withdraw <%full_name% address>"},
	"withdraw_too_small":  {"%name%: Your balance of %balance% %short_name% is below the minimum withdrawal of %min_withdraw% %short_name%."},
	"withdraw_success": {
		"%name%: Sent %amount% %short_name% to %address% (fee %withdrawal_fee% %short_name%).",
		"Transaction: %transaction%",
	},
	"help": {
		"%nick% commands: %prefix%tip <nickname> <amount>, %prefix%balance, %prefix%address, %prefix%withdraw <address>, %prefix%terms",
		"Commands work in private messages without the %prefix% prefix. You must be identified with %authority%.",
	},
	"terms": {
		"%nick% holds your %full_name% in a shared wallet. Use it at your own risk and don't keep more than you can afford to lose.",
		"Tips need %min_confirmations% confirmations on deposits. Withdrawals cost %withdrawal_fee% %short_name%.",
	},
}
