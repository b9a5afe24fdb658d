// Package domain models OpenStreetMap points of interest and the sales leads
// derived from them.
//
// # Data Source
//
// Points of interest come from the Overpass API as nodes or ways, each with a
// free-form tag map. Keys follow OSM conventions and any of them may be absent:
//
//	name                         business name
//	phone, contact:phone         phone number (either alias)
//	email, contact:email         email address (either alias)
//	contact:facebook             social profile URL
//	contact:instagram            social profile URL
//	website                      presence disqualifies the business as a lead
//	opening_date, start_date     ISO-8601 calendar date the business opened
//	addr:full                    combined address
//	addr:housenumber, addr:street, addr:city, addr:state
//	addr:postcode                ZIP code, used for the income lookup
//
// Tag values are compared verbatim. An empty value counts as absent for alias
// lookups (see [Tags.First]); `website` disqualifies on key presence alone.
//
// # Dates
//
// Opening dates are accepted as YYYY-MM-DD, optionally followed by an ISO-8601
// time part ("2024-05-01T09:00:00" or RFC 3339). Partial dates such as "2024-05"
// are rejected. Newness is the number of whole days between the date and now.
//
// # Scoring
//
//	freshness   max(0, 30 - newness_days), capped at 30 for future dates
//	phone       +10
//	email/social +5
//	income tier +10 High, +5 Medium
//
// The maximum score is 55.
package domain
