package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Attendance API",
        "description": "RFID attendance tracking for school events",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Attendance", "description": "RFID scan intake and ledger"},
        {"name": "Records", "description": "Attendance matrix reports"},
        {"name": "Semesters", "description": "Semester lifecycle"},
        {"name": "Events", "description": "Events and time slots"},
        {"name": "Students", "description": "Student roster"}
    ],
    "paths": {
        "/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record an RFID scan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not allowed yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown student or slot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "yearLevel", "in": "query", "type": "integer"},
                    {"name": "slotId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/{id}": {
            "delete": {
                "tags": ["Attendance"],
                "summary": "Delete an attendance record",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/attendance/stats/{slotId}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Slot attendance stats",
                "parameters": [
                    {"name": "slotId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records": {
            "get": {
                "tags": ["Records"],
                "summary": "Attendance matrix report",
                "parameters": [
                    {"name": "semesterId", "in": "query", "required": true, "type": "string"},
                    {"name": "yearLevel", "in": "query", "type": "integer"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/records/export": {
            "get": {
                "tags": ["Records"],
                "summary": "Export the attendance matrix",
                "parameters": [
                    {"name": "semesterId", "in": "query", "required": true, "type": "string"},
                    {"name": "yearLevel", "in": "query", "type": "integer"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/semesters": {
            "get": {
                "tags": ["Semesters"],
                "summary": "List semesters",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Semesters"],
                "summary": "Create semester",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SemesterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name or dates conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/active": {
            "get": {
                "tags": ["Semesters"],
                "summary": "Get the active semester",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/{id}": {
            "get": {
                "tags": ["Semesters"],
                "summary": "Get semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Semesters"],
                "summary": "Update semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SemesterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Semesters"],
                "summary": "Delete semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "412": {"description": "Active or has events", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/{id}/activate": {
            "post": {
                "tags": ["Semesters"],
                "summary": "Activate semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/semesters/{id}/deactivate": {
            "post": {
                "tags": ["Semesters"],
                "summary": "Deactivate semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create event",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/kiosk/events": {
            "get": {
                "tags": ["Events"],
                "summary": "Upcoming events in the active semester",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/kiosk/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get event with time slots and attendance counts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get event with time slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Events"],
                "summary": "Update event and sync time slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Delete event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "yearLevel", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate student_id, rfid_uid or email", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/students/import": {
            "post": {
                "tags": ["Students"],
                "summary": "Import students from CSV",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/import/template": {
            "get": {
                "tags": ["Students"],
                "summary": "Download the roster import template",
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/students/export": {
            "get": {
                "tags": ["Students"],
                "summary": "Export the roster",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "yearLevel", "in": "query", "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        }
    },
    "definitions": {
        "RecordAttendanceRequest": {
            "type": "object",
            "properties": {
                "student_rfid_uid": {"type": "string"},
                "time_slot_id": {"type": "string"}
            },
            "required": ["student_rfid_uid", "time_slot_id"]
        },
        "SemesterRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"}
            },
            "required": ["name", "start_date", "end_date"]
        },
        "EventRequest": {
            "type": "object",
            "properties": {
                "semester_id": {"type": "string"},
                "name": {"type": "string"},
                "date": {"type": "string"},
                "description": {"type": "string"},
                "time_slots": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/TimeSlotRequest"}
                }
            },
            "required": ["semester_id", "name", "date", "time_slots"]
        },
        "TimeSlotRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "slot_type": {"type": "string", "enum": ["morning-in", "morning-out", "afternoon-in", "afternoon-out", "evening-in", "evening-out"]},
                "start": {"type": "string"},
                "end": {"type": "string"}
            },
            "required": ["slot_type", "start", "end"]
        },
        "StudentRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "rfid_uid": {"type": "string"},
                "first_name": {"type": "string"},
                "middle_name": {"type": "string"},
                "last_name": {"type": "string"},
                "email": {"type": "string"},
                "year_level": {"type": "integer"}
            },
            "required": ["student_id", "rfid_uid", "first_name", "last_name", "email", "year_level"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
