package classify

import "strings"

const systemPromptEN = `You classify business contacts for a sales team into exactly one category:
- CLIENT: buys our products or services (shops, retailers, end customers, companies placing orders).
- PRESCRIBER: recommends or prescribes our products without buying them (doctors, pharmacists, architects, consultants, referrers).
- SUPPLIER: sells goods or services to us (manufacturers, wholesalers, subcontractors, logistics providers).
- NEEDS_QUALIFICATION: only when the data gives no usable signal at all.

Use the name, activity, email domain, location and the enrichment summary. Prefer a substantive category with a moderate confidence over NEEDS_QUALIFICATION. Confidence is an integer from 0 to 100. Set needs_review when confidence is below 70 or the evidence conflicts. Write reason and signals_used in English, one short sentence each.
Answer by calling record_classifications once with one entry per contact index.`

const systemPromptFR = `Vous classez des contacts professionnels pour une équipe commerciale dans exactement une catégorie :
- CLIENT : achète nos produits ou services (magasins, revendeurs, clients finaux, entreprises qui commandent).
- PRESCRIBER : recommande ou prescrit nos produits sans les acheter (médecins, pharmaciens, architectes, consultants, apporteurs d'affaires).
- SUPPLIER : nous vend des biens ou services (fabricants, grossistes, sous-traitants, logisticiens).
- NEEDS_QUALIFICATION : uniquement si les données ne donnent aucun signal exploitable.

Utilisez le nom, l'activité, le domaine email, la localisation et le résumé d'enrichissement. Préférez une catégorie substantielle avec une confiance modérée à NEEDS_QUALIFICATION. La confiance est un entier de 0 à 100. Activez needs_review si la confiance est inférieure à 70 ou si les indices se contredisent. Rédigez reason et signals_used en français, une phrase courte chacun.
Répondez en appelant record_classifications une seule fois avec une entrée par index de contact.`

func systemPrompt(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return systemPromptEN
	}
	return systemPromptFR
}
