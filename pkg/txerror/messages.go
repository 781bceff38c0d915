package txerror

import "strings"

// DefaultLocale is used when a message is missing for the requested locale
const DefaultLocale = "en"

var catalog = map[string]map[Kind]string{
	"en": {
		UserRejected:         "You rejected the request in your wallet. Nothing was submitted; you can try again.",
		InsufficientGasFunds: "Your account does not have enough native balance to pay for gas.",
		NonceConflict:        "Your wallet has a conflicting pending transaction. Wait a moment and retry.",
		NetworkOrRPC:         "The network did not respond. Please retry.",
		ContractReverted:     "The contract rejected the transaction. A required condition was not met when it executed.",
		ExtractionFailed:     "The payment contract was created but its address could not be determined. Look up the transaction on a block explorer.",
		UnknownTimeout:       "We could not confirm the transaction in time. Check the transaction on a block explorer before retrying.",
		PersistenceFailed:    "The payment is confirmed on-chain but the record could not be saved. Refresh to sync it.",
		Unknown:              "Something went wrong.",
		AlreadyCancelled:     "This payment has already been cancelled.",
		AlreadyExecuted:      "This payment has already been fully executed.",
		CancelWindowPassed:   "This payment can no longer be cancelled; its release time has passed.",
		NotOwner:             "Only the payer can cancel this payment.",
		NotCancellable:       "This payment was created as non-cancellable.",
		TargetIsFactory:      "The address is the payment factory, not a payment contract.",
		NotAContract:         "No contract is deployed at this address.",
		WrongNetwork:         "Your wallet is connected to the wrong network.",
		InvalidIntent:        "The payment request is incomplete or invalid.",
	},
	"es": {
		UserRejected:         "Rechazaste la solicitud en tu billetera. No se envió nada; puedes intentarlo de nuevo.",
		InsufficientGasFunds: "Tu cuenta no tiene saldo nativo suficiente para pagar el gas.",
		NonceConflict:        "Tu billetera tiene una transacción pendiente en conflicto. Espera un momento y vuelve a intentarlo.",
		NetworkOrRPC:         "La red no respondió. Vuelve a intentarlo.",
		ContractReverted:     "El contrato rechazó la transacción. No se cumplió una condición necesaria al ejecutarse.",
		ExtractionFailed:     "El contrato de pago se creó pero no se pudo determinar su dirección. Busca la transacción en un explorador de bloques.",
		UnknownTimeout:       "No pudimos confirmar la transacción a tiempo. Revísala en un explorador de bloques antes de reintentar.",
		PersistenceFailed:    "El pago está confirmado en la cadena pero no se pudo guardar el registro. Actualiza para sincronizarlo.",
		Unknown:              "Algo salió mal.",
		AlreadyCancelled:     "Este pago ya fue cancelado.",
		AlreadyExecuted:      "Este pago ya se ejecutó por completo.",
		CancelWindowPassed:   "Este pago ya no se puede cancelar; su fecha de liberación ya pasó.",
		NotOwner:             "Solo el pagador puede cancelar este pago.",
		NotCancellable:       "Este pago se creó como no cancelable.",
		TargetIsFactory:      "La dirección es la fábrica de pagos, no un contrato de pago.",
		NotAContract:         "No hay ningún contrato desplegado en esta dirección.",
		WrongNetwork:         "Tu billetera está conectada a la red equivocada.",
		InvalidIntent:        "La solicitud de pago está incompleta o no es válida.",
	},
}

// Message returns the localized message for a kind. Unknown errors with a
// raw provider message return that message unchanged.
func Message(kind Kind, locale, raw string) string {
	if kind == Unknown && raw != "" {
		return raw
	}

	if messages, ok := catalog[strings.ToLower(locale)]; ok {
		if msg, ok := messages[kind]; ok {
			return msg
		}
	}
	if msg, ok := catalog[DefaultLocale][kind]; ok {
		return msg
	}
	if raw != "" {
		return raw
	}
	return catalog[DefaultLocale][Unknown]
}

// Locales returns the supported message locales
func Locales() []string {
	locales := make([]string, 0, len(catalog))
	for locale := range catalog {
		locales = append(locales, locale)
	}
	return locales
}
