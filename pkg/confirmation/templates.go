package confirmation

const defaultTemplate = "*"

var defaultTemplates = map[string]map[string]string{
	"en": {
		"cart_add_item":    "Add {quantity} × {item} to your cart? Reply yes to confirm or no to cancel.",
		"cart_update_item": "Change cart line {line} to quantity {quantity}? Reply yes to confirm or no to cancel.",
		"cart_remove_item": "Remove cart line {line} from your cart? Reply yes to confirm or no to cancel.",
		defaultTemplate:    "Go ahead with {tool}? Reply yes to confirm or no to cancel.",
	},
	"de": {
		"cart_add_item":    "{quantity} × {item} in den Warenkorb legen? Antworte mit Ja zum Bestätigen oder Nein zum Abbrechen.",
		"cart_update_item": "Menge der Warenkorbposition {line} auf {quantity} ändern? Antworte mit Ja oder Nein.",
		"cart_remove_item": "Warenkorbposition {line} entfernen? Antworte mit Ja oder Nein.",
		defaultTemplate:    "{tool} ausführen? Antworte mit Ja oder Nein.",
	},
	"fr": {
		"cart_add_item":    "Ajouter {quantity} × {item} au panier ? Répondez oui pour confirmer ou non pour annuler.",
		"cart_update_item": "Passer la ligne {line} du panier à la quantité {quantity} ? Répondez oui ou non.",
		"cart_remove_item": "Retirer la ligne {line} du panier ? Répondez oui ou non.",
		defaultTemplate:    "Exécuter {tool} ? Répondez oui ou non.",
	},
	"es": {
		"cart_add_item":    "¿Añadir {quantity} × {item} al carrito? Responde sí para confirmar o no para cancelar.",
		"cart_update_item": "¿Cambiar la línea {line} del carrito a la cantidad {quantity}? Responde sí o no.",
		"cart_remove_item": "¿Quitar la línea {line} del carrito? Responde sí o no.",
		defaultTemplate:    "¿Ejecutar {tool}? Responde sí o no.",
	},
	"nl": {
		"cart_add_item":    "{quantity} × {item} aan je winkelwagen toevoegen? Antwoord ja om te bevestigen of nee om te annuleren.",
		"cart_update_item": "Regel {line} in je winkelwagen wijzigen naar aantal {quantity}? Antwoord ja of nee.",
		"cart_remove_item": "Regel {line} uit je winkelwagen verwijderen? Antwoord ja of nee.",
		defaultTemplate:    "{tool} uitvoeren? Antwoord ja of nee.",
	},
}
